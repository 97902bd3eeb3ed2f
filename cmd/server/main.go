// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/eventdesk/eventdesk-backend/internal/controller"
	"github.com/eventdesk/eventdesk-backend/internal/crypto"
	"github.com/eventdesk/eventdesk-backend/internal/db"
	"github.com/eventdesk/eventdesk-backend/internal/gateway"
	"github.com/eventdesk/eventdesk-backend/internal/handler"
	"github.com/eventdesk/eventdesk-backend/internal/queue"
	"github.com/eventdesk/eventdesk-backend/internal/registry"
	"github.com/eventdesk/eventdesk-backend/internal/repository"
	"github.com/eventdesk/eventdesk-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()

	cipher, err := crypto.NewTokenCipherFromHex(os.Getenv("TOKEN_KEY"))
	if err != nil {
		log.Fatal("invalid TOKEN_KEY:", err)
	}

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	deviceRepo := &repository.DeviceTokenRepository{DB: db.DB}
	deviceRegistry := registry.NewDeviceRegistry(deviceRepo, cipher)

	worker := service.NewDeliveryWorker(campaignRepo, deviceRegistry, buildGateway())

	notificationService := &service.NotificationService{
		Campaigns: campaignRepo,
		Registry:  deviceRegistry,
		Scheduler: buildScheduler(worker),
		Worker:    worker,
	}

	notificationController := &controller.NotificationController{
		Service: notificationService,
	}
	deviceHandler := handler.NewDeviceHandler(notificationService)

	r := chi.NewRouter()

	// Campaign routes
	r.Post("/campaigns", notificationController.CreateCampaign)
	r.Get("/campaigns", notificationController.ListCampaigns)
	r.Get("/campaigns/history", notificationController.GetHistory)
	r.Get("/campaigns/stats", notificationController.GetStats)
	r.Get("/campaigns/{id}", notificationController.GetCampaign)
	r.Patch("/campaigns/{id}", notificationController.UpdateCampaign)
	r.Delete("/campaigns/{id}", notificationController.DeleteCampaign)
	r.Post("/campaigns/{id}/cancel", notificationController.CancelCampaign)
	r.Post("/campaigns/{id}/send", notificationController.SendNow)

	// Device routes
	r.Post("/devices", deviceHandler.RegisterDeviceHandler)
	r.Get("/devices/test", deviceHandler.ListTestDevicesHandler)
	r.Post("/devices/{id}/test", deviceHandler.SendTestHandler)

	r.Handle("/metrics", promhttp.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("Server running on :" + port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}

// buildGateway uses FCM when credentials are configured, otherwise the stub
// so local development works without a Firebase project.
func buildGateway() gateway.PushGateway {
	if credsFile := os.Getenv("FCM_CREDENTIALS_FILE"); credsFile != "" {
		gw, err := gateway.NewFCMGateway(context.Background(), credsFile)
		if err != nil {
			log.Fatal("failed to init FCM gateway:", err)
		}
		return gw
	}
	log.Println("FCM_CREDENTIALS_FILE not set, using stub gateway")
	return &gateway.StubGateway{}
}

// buildScheduler prefers the broker-backed scheduler when AMQP_URL is set,
// with cmd/worker consuming the delivery queue. Without a broker, delayed
// tasks run in-process.
func buildScheduler(worker *service.DeliveryWorker) queue.Scheduler {
	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		log.Println("AMQP_URL not set, scheduling deliveries in-process")
		return queue.NewInMemoryScheduler(func(campaignID string) error {
			return worker.Deliver(context.Background(), campaignID)
		})
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ:", err)
	}
	sched, err := queue.NewAMQPScheduler(conn)
	if err != nil {
		log.Fatal("failed to set up delivery queues:", err)
	}
	return sched
}

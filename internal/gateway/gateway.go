// Package gateway abstracts the external push provider. The delivery worker
// only depends on the Send contract; the FCM adapter and the stub are the two
// implementations.
package gateway

import "context"

type PushGateway interface {
	// Send attempts delivery of one notification to one device. The token is
	// the decrypted push credential; implementations must not log it.
	Send(ctx context.Context, platform, token, title, message string) error
}

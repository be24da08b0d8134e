package redisx

import "fmt"

const ns = "classbook:v1"

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdempotency(scope, idemKey string) string {
	return fmt.Sprintf("%s:idem:%s:%s", ns, scope, idemKey)
}

func ChannelSlotsChanged() string {
	return ns + ":slots:changed"
}

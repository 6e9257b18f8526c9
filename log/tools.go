package log

import (
	"fmt"
	"net/netip"
	"unicode/utf8"

	"go.uber.org/zap"
)

func ByteField(key string, data []byte) zap.Field {
	if utf8.Valid(data) {
		return zap.ByteString(key, data)
	} else {
		return zap.Binary(key, data)
	}
}

func Addr(ip fmt.Stringer) zap.Field {
	return zap.Stringer("ip", ip)
}

func Prefix(p netip.Prefix) zap.Field {
	return zap.Stringer("cidr", p)
}

func Stage(stage string) zap.Field {
	return zap.String("stage", stage)
}

func Endpoint(endpoint string) zap.Field {
	return zap.String("endpoint", endpoint)
}

// Candidate tags an IP string that has not been validated yet.
func Candidate(candidate string) zap.Field {
	return zap.String("candidate", candidate)
}

package logger

import (
	"time"

	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------------

func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

func Method(v string) zap.Field {
	return zap.String("method", v)
}

func Path(v string) zap.Field {
	return zap.String("path", v)
}

func Status(v int) zap.Field {
	return zap.Int("status", v)
}

func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// DurationMs crea un campo con la duración en milisegundos.
func DurationMs(v time.Duration) zap.Field {
	return zap.Int64("duration_ms", v.Milliseconds())
}

// ---------------------------------------------------------------------------------
// Dominio
// ---------------------------------------------------------------------------------

func PostID(v string) zap.Field {
	return zap.String("post_id", v)
}

func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

func MediaID(v string) zap.Field {
	return zap.String("media_id", v)
}

// ---------------------------------------------------------------------------------
// Fabric
// ---------------------------------------------------------------------------------

func RoutingKey(v string) zap.Field {
	return zap.String("routing_key", v)
}

func Exchange(v string) zap.Field {
	return zap.String("exchange", v)
}

func Queue(v string) zap.Field {
	return zap.String("queue", v)
}

func Attempt(v int) zap.Field {
	return zap.Int("attempt", v)
}

// ---------------------------------------------------------------------------------
// Cache / admission
// ---------------------------------------------------------------------------------

func CacheKey(v string) zap.Field {
	return zap.String("cache_key", v)
}

func ClientKey(v string) zap.Field {
	return zap.String("client_key", v)
}

func Tier(v string) zap.Field {
	return zap.String("tier", v)
}

// ---------------------------------------------------------------------------------
// Genéricos
// ---------------------------------------------------------------------------------

func Component(v string) zap.Field {
	return zap.String("component", v)
}

func Op(v string) zap.Field {
	return zap.String("op", v)
}

func Err(err error) zap.Field {
	return zap.Error(err)
}

func Count(v int) zap.Field {
	return zap.Int("count", v)
}

func Key(v string) zap.Field {
	return zap.String("key", v)
}

func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

func String(key, v string) zap.Field {
	return zap.String(key, v)
}

func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}

func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

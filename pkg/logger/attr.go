package logger

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error records err under "error". A nil error yields an empty Attr, which
// slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Errors groups the non-nil errors under "errors".
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.String(strconv.Itoa(i), err.Error()))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// TenantID records a tenant identifier under "tenant_id". Zero identities,
// whose String is empty, yield an empty Attr.
func TenantID(id fmt.Stringer) slog.Attr {
	if id == nil || id.String() == "" {
		return slog.Attr{}
	}
	return slog.String("tenant_id", id.String())
}

// DeclaredTenantID records the tenant a command or envelope claimed to target.
func DeclaredTenantID(id fmt.Stringer) slog.Attr {
	if id == nil || id.String() == "" {
		return slog.String("declared_tenant_id", "")
	}
	return slog.String("declared_tenant_id", id.String())
}

func Actor(actor string) slog.Attr {
	if actor == "" {
		return slog.Attr{}
	}
	return slog.String("actor", actor)
}

func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Operation names the guarded operation, e.g. "command:records.CreateRecord".
func Operation(op string) slog.Attr {
	return slog.String("operation", op)
}

// Boundary names the unit-of-work boundary where a leak was found.
func Boundary(b string) slog.Attr {
	return slog.String("boundary", b)
}

func Depth(n int) slog.Attr {
	return slog.Int("depth", n)
}

func EventType(t string) slog.Attr {
	return slog.String("event_type", t)
}

func EnvelopeID(id fmt.Stringer) slog.Attr {
	return slog.String("envelope_id", id.String())
}

func TaskID(id fmt.Stringer) slog.Attr {
	return slog.String("task_id", id.String())
}

func Handler(name string) slog.Attr {
	return slog.String("handler", name)
}

func RetryCount(n int) slog.Attr {
	return slog.Int("retry_count", n)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

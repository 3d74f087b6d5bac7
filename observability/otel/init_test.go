package otel

import (
	"context"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "signerd", Traces: true, Metrics: true})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer x ,broken, =skip,tenant=eragon")
	if len(headers) != 2 || headers["authorization"] != "Bearer x" || headers["tenant"] != "eragon" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}

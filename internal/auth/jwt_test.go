package auth

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/metadata"

	"droneDispatchService/internal/testutil"
)

const testSecret = "test-secret"

func TestParseFromMD_ValidBearer(t *testing.T) {
	tok := testutil.GenerateJWTHS256(t, testSecret, "alice", "dispatcher")
	ctx := testutil.CtxWithBearer(context.Background(), tok)
	p, err := ParseFromMD(ctx, testSecret)
	if err != nil {
		t.Fatalf("ParseFromMD: %v", err)
	}
	if p.Name != "alice" || p.Kind != KindDispatcher {
		t.Fatalf("principal mismatch: %+v", p)
	}
}

func TestParseFromMD_MissingHeader(t *testing.T) {
	_, err := ParseFromMD(context.Background(), testSecret)
	if err == nil {
		t.Fatalf("expected error for missing metadata")
	}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "1"))
	if _, err := ParseFromMD(ctx, testSecret); err == nil {
		t.Fatalf("expected error for missing authorization")
	}
}

func TestParseFromMD_InvalidScheme(t *testing.T) {
	tok := testutil.GenerateJWTHS256(t, testSecret, "bob", "observer")
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic "+tok))
	if _, err := ParseFromMD(ctx, testSecret); err == nil {
		t.Fatalf("expected error for non-Bearer scheme")
	}
	if _, err := parseJWT(tok, "wrong"); err == nil {
		t.Fatalf("expected error for wrong secret")
	}
}

func TestParseJWT_ClaimsValidation(t *testing.T) {
	tok := testutil.GenerateJWTHS256(t, testSecret, "", "")
	if _, err := parseJWT(tok, testSecret); err == nil {
		t.Fatalf("expected invalid claims error")
	}
	tok = testutil.GenerateJWTHS256(t, testSecret, "carol", "enduser")
	if _, err := parseJWT(tok, testSecret); err == nil {
		t.Fatalf("expected unknown kind to be rejected")
	}
}

func TestIssue_RoundTrip(t *testing.T) {
	tok, err := Issue(testSecret, "ops", "ADMIN", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p, err := parseJWT(tok, testSecret)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if p.Name != "ops" || p.Kind != KindAdmin {
		t.Fatalf("principal mismatch: %+v", p)
	}
}

func TestIssue_Expired(t *testing.T) {
	tok, err := Issue(testSecret, "ops", KindObserver, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Non-positive ttl means no expiry.
	if _, err := parseJWT(tok, testSecret); err != nil {
		t.Fatalf("token without expiry rejected: %v", err)
	}
	tok, err = Issue(testSecret, "ops", KindObserver, time.Nanosecond)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := parseJWT(tok, testSecret); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestIssue_Rejects(t *testing.T) {
	if _, err := Issue("", "ops", KindAdmin, 0); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := Issue(testSecret, " ", KindAdmin, 0); err == nil {
		t.Fatalf("expected error for blank name")
	}
	if _, err := Issue(testSecret, "ops", "drone", 0); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

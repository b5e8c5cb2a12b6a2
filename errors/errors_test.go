package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
	if New(ErrCodeClosed, "closed", http.StatusGone).Retryable {
		t.Error("STREAM_CLOSED should not be retryable")
	}
}

func TestClosed_MatchesSentinel(t *testing.T) {
	err := Closed("queue")
	if !stderrors.Is(err, ErrClosed) {
		t.Fatal("expected errors.Is(Closed, ErrClosed)")
	}
	wrapped := fmt.Errorf("push: %w", err)
	if !stderrors.Is(wrapped, ErrClosed) {
		t.Error("expected wrapped closed error to match")
	}
	if stderrors.Is(InvalidConfig("capacity", "bad"), ErrClosed) {
		t.Error("INVALID_CONFIG must not match ErrClosed")
	}
	if err.Details["resource"] != "queue" {
		t.Errorf("expected resource=queue, got %v", err.Details["resource"])
	}
}

func TestInvalidConfig_Details(t *testing.T) {
	err := InvalidConfig("drop_policy", "must be oldest or newest")
	if err.Code != ErrCodeInvalidConfig {
		t.Errorf("expected INVALID_CONFIG, got %s", err.Code)
	}
	if err.Details["field"] != "drop_policy" {
		t.Errorf("expected field detail, got %v", err.Details)
	}
	if !strings.Contains(err.Error(), "oldest or newest") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestListenerFailed_WrapsPanicValue(t *testing.T) {
	err := ListenerFailed("prices", "boom")
	if err.Cause == nil || err.Cause.Error() != "boom" {
		t.Fatalf("expected cause boom, got %v", err.Cause)
	}
	cause := stderrors.New("typed")
	if got := ListenerFailed("prices", cause); !stderrors.Is(got, cause) {
		t.Error("expected error panic value to be unwrappable")
	}
}

func TestTransformFailed(t *testing.T) {
	cause := stderrors.New("bad row")
	err := TransformFailed(3, cause)
	if err.Details["index"] != uint64(3) {
		t.Errorf("expected index 3, got %v", err.Details["index"])
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
	if CodeOf(fmt.Errorf("wrap: %w", err)) != ErrCodeTransformFailed {
		t.Error("CodeOf should see through wrapping")
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(nil) != nil {
		t.Error("nil in, nil out")
	}
	if got := FromContext(context.DeadlineExceeded); got.Code != ErrCodeTimeout {
		t.Errorf("expected TIMEOUT, got %s", got.Code)
	}
	if got := FromContext(context.Canceled); got.Code != ErrCodeCanceled {
		t.Errorf("expected CANCELED, got %s", got.Code)
	}
}

func TestToResponse(t *testing.T) {
	resp := NotFound("route", "orders").ToResponse()
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", resp.Error.Code)
	}
	if resp.Error.Details["id"] != "orders" {
		t.Errorf("expected id detail, got %v", resp.Error.Details)
	}
}

func TestAsAppError_Plain(t *testing.T) {
	if _, ok := AsAppError(stderrors.New("plain")); ok {
		t.Error("plain error is not an AppError")
	}
	if CodeOf(stderrors.New("plain")) != "" {
		t.Error("expected empty code")
	}
}

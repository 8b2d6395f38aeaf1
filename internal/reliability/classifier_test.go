package reliability

import "testing"

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableStreamMessage(t *testing.T) {
	if !IsRetryableStreamMessage("rate_limited") {
		t.Fatalf("rate_limited should be retryable")
	}
	if IsRetryableStreamMessage("invalid_api_key") {
		t.Fatalf("invalid_api_key should not be retryable")
	}
}

package loyalty

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRandomStringSkipsBiasedBytes(test *testing.T) {
	test.Parallel()
	generator := NewCodeGenerator(bytes.NewReader([]byte{255, 252, 0, 35, 251, 10, 7, 7}))
	value, err := generator.RandomString(4)
	if err != nil {
		test.Fatalf("random string: %v", err)
	}
	if value != "0ZZA" {
		test.Fatalf("expected 0ZZA, got %q", value)
	}
}

func TestRandomStringReaderFailure(test *testing.T) {
	test.Parallel()
	generator := NewCodeGenerator(bytes.NewReader(nil))
	if _, err := generator.RandomString(6); err == nil {
		test.Fatalf("expected read failure")
	}
	if _, err := generator.RandomString(0); !errors.Is(err, ErrInvalidCodeBatch) {
		test.Fatalf("expected invalid length error, got %v", err)
	}
}

func TestDeliveryCodeShape(test *testing.T) {
	test.Parallel()
	generator := NewCodeGenerator(nil)
	prefixed, err := generator.DeliveryCode(" tokyo ")
	if err != nil {
		test.Fatalf("delivery code: %v", err)
	}
	if !strings.HasPrefix(prefixed.String(), "TOKYO-") || len(prefixed.String()) != len("TOKYO-")+codeBodyLength {
		test.Fatalf("unexpected prefixed code %q", prefixed.String())
	}
	bare, err := generator.DeliveryCode("")
	if err != nil || len(bare.String()) != codeBodyLength {
		test.Fatalf("unexpected bare code %q %v", bare.String(), err)
	}
	identifier, err := generator.NewUUID()
	if err != nil || len(identifier) != 36 {
		test.Fatalf("unexpected uuid %q %v", identifier, err)
	}
}

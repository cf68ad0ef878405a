package loyalty

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

const (
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// largest multiple of len(codeAlphabet) that fits in a byte
	codeSampleCeiling = 252
)

// CodeGenerator draws opaque codes and identifiers from a random source.
type CodeGenerator struct {
	reader io.Reader
}

// NewCodeGenerator wraps a random source; nil selects crypto/rand.
func NewCodeGenerator(reader io.Reader) *CodeGenerator {
	if reader == nil {
		reader = rand.Reader
	}
	return &CodeGenerator{reader: reader}
}

// RandomString returns length characters drawn uniformly from A-Z and 0-9.
func (generator *CodeGenerator) RandomString(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: length must be positive", ErrInvalidCodeBatch)
	}
	var builder strings.Builder
	builder.Grow(length)
	buffer := make([]byte, length)
	for builder.Len() < length {
		if _, err := io.ReadFull(generator.reader, buffer); err != nil {
			return "", WrapError("codegen", "random", "read_failed", err)
		}
		for _, sample := range buffer {
			if sample >= codeSampleCeiling {
				continue
			}
			builder.WriteByte(codeAlphabet[int(sample)%len(codeAlphabet)])
			if builder.Len() == length {
				break
			}
		}
	}
	return builder.String(), nil
}

// DeliveryCode returns a PREFIX-XXXXXX body without its check character.
func (generator *CodeGenerator) DeliveryCode(prefix string) (CodeValue, error) {
	body, err := generator.RandomString(codeBodyLength)
	if err != nil {
		return CodeValue{}, err
	}
	normalizedPrefix := strings.ToUpper(strings.TrimSpace(prefix))
	if normalizedPrefix == "" {
		return NewCodeValue(body)
	}
	return NewCodeValue(normalizedPrefix + codeSegmentDelimiter + body)
}

// RedemptionCode returns the short code staff read off a member's screen.
func (generator *CodeGenerator) RedemptionCode() (string, error) {
	return generator.RandomString(redemptionCodeLength)
}

// NewUUID returns a random version 4 identifier.
func (generator *CodeGenerator) NewUUID() (string, error) {
	identifier, err := uuid.NewRandomFromReader(generator.reader)
	if err != nil {
		return "", WrapError("codegen", "uuid", "read_failed", err)
	}
	return identifier.String(), nil
}

package loyalty

const (
	checksumPrime    = 17
	checksumModulus  = 36
	checksumAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// ComputeChecksum derives the check character of a code. Each byte at 1-based
// position i contributes c + c*i; the sum is multiplied by 17 and reduced mod 36.
func ComputeChecksum(code string) byte {
	total := 0
	for index := 0; index < len(code); index++ {
		characterCode := int(code[index])
		total += characterCode + characterCode*(index+1)
	}
	return checksumAlphabet[(total*checksumPrime)%checksumModulus]
}

// AppendChecksum returns the client-visible form of a code.
func AppendChecksum(code string) string {
	return code + string(ComputeChecksum(code))
}

// VerifyChecksum splits off the trailing check character and compares it with
// the recomputed value.
func VerifyChecksum(fullCode string) bool {
	if len(fullCode) < 2 {
		return false
	}
	body, claimed := SplitChecksum(fullCode)
	return ComputeChecksum(body) == claimed
}

// SplitChecksum separates the code body from its trailing check character.
func SplitChecksum(fullCode string) (string, byte) {
	if fullCode == "" {
		return "", 0
	}
	last := len(fullCode) - 1
	return fullCode[:last], fullCode[last]
}

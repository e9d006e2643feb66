package names

const (
	firstChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_$"
	otherChars = firstChars + "0123456789"
)

// Encode converts a non-negative counter value into an identifier-safe name.
// The first character never is a digit. Digits after the first are written least significant
// first and the last written digit is never zero, which keeps the mapping injective.
func Encode(n int) string {
	if n < 0 {
		panic("names: negative index")
	}
	buf := make([]byte, 0, 4)
	buf = append(buf, firstChars[n%len(firstChars)])
	n /= len(firstChars)
	for n > 0 {
		buf = append(buf, otherChars[n%len(otherChars)])
		n /= len(otherChars)
	}
	return string(buf)
}

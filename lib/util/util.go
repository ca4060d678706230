// Package util contains helper functions used around the code.
package util

// In returns true if s is found in ss, false otherwise
func In[T comparable](ss []T, s T) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}

	return false
}

// Chunks splits s in pieces of at most n bytes, cutting at newlines when possible.
func Chunks(s string, n int) []string {
	var out []string

	for len(s) > n {
		cut := n
		for i := n; i > 0; i-- {
			if s[i-1] == '\n' {
				cut = i

				break
			}
		}

		out = append(out, s[:cut])
		s = s[cut:]
	}

	if s != "" {
		out = append(out, s)
	}

	return out
}

package core

// Claims is the decoded payload of a presented identity token. Values keep
// the loose typing of the wire format; the accessors below normalize the
// handful of claims the verification flow reads.
type Claims map[string]any

// Issuer returns the iss claim, or "" when absent or not a string.
func (c Claims) Issuer() string {
	s, _ := c["iss"].(string)
	return s
}

// WebID returns the webid claim, or "" when absent or not a string.
func (c Claims) WebID() string {
	s, _ := c["webid"].(string)
	return s
}

// Sub returns the sub claim, or "" when absent or not a string.
func (c Claims) Sub() string {
	s, _ := c["sub"].(string)
	return s
}

// Audience returns the aud claim normalized to a list. A single string
// becomes a one-element list; non-string entries are dropped.
func (c Claims) Audience() []string {
	switch v := c["aud"].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

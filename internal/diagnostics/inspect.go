package diagnostics

import "audiblezenbot/internal/protect"

// Entry is one protected value found by Inspect.
type Entry struct {
	// Path is the dot-separated location, e.g. "platforms.twitch.oauth_token".
	Path string

	// Value is the decrypted plaintext, empty when Err is set.
	Value string

	Err error
}

// Inspect decrypts every ENC: string in data, in document order. A value that
// fails to decrypt yields an Entry with Err set and the walk continues.
func Inspect(data []byte, p protect.Protector) ([]Entry, error) {
	root, err := parseRoot(data)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	walkStrings(root, "", func(path, s string) {
		if !protect.IsProtected(s) {
			return
		}
		plain, err := protect.UnprotectString(p, s)
		entries = append(entries, Entry{Path: path, Value: plain, Err: err})
	})
	return entries, nil
}

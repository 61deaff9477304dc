package schemas

import "time"

// ProfileVersion is the current version of the persisted profile record.
const ProfileVersion = 1

// Cookie mirrors the subset of a CDP cookie needed to replay a session.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// BrowserProfile is a persisted browser identity representing a returning user.
type BrowserProfile struct {
	Name           string            `json:"name"`
	Cookies        []Cookie          `json:"cookies"`
	LocalStorage   map[string]string `json:"localStorage"`
	SessionStorage map[string]string `json:"sessionStorage"`
	UserAgent      string            `json:"userAgent"`
	WalletAddress  string            `json:"walletAddress,omitempty"`
	SavedAt        time.Time         `json:"timestamp"`
	Version        int               `json:"version"`
}

// Clone returns a deep copy so a run can mutate its transient copy freely.
func (p *BrowserProfile) Clone() *BrowserProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Cookies = append([]Cookie(nil), p.Cookies...)
	out.LocalStorage = cloneStrings(p.LocalStorage)
	out.SessionStorage = cloneStrings(p.SessionStorage)
	return &out
}

// Empty reports whether the profile carries no replayable state.
func (p *BrowserProfile) Empty() bool {
	return p == nil || (len(p.Cookies) == 0 && len(p.LocalStorage) == 0 && len(p.SessionStorage) == 0)
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

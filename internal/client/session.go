package client

import "sync"

// Session holds the access credential shared by every request a Client
// sends. Each new credential starts a new generation; refreshes and
// invalidations apply to the generation they were started for, so a slow
// caller can never undo a newer credential.
type Session struct {
	mu      sync.Mutex
	token   string
	gen     uint64
	expired bool
}

// NewSession starts a session with an access token, which may be empty.
func NewSession(token string) *Session {
	return &Session{token: token}
}

// Token returns the current access token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Set installs a credential obtained out of band, e.g. after sign-in.
func (s *Session) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.gen++
	s.expired = false
}

// Expired reports whether the session was invalidated and not re-established.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

func (s *Session) snapshot() (token string, gen uint64, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.gen, s.expired
}

// current returns the newer credential when generation gen has already
// been superseded.
func (s *Session) current(gen uint64) (string, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen && !s.expired {
		return s.token, s.gen, true
	}
	return "", 0, false
}

// rotate replaces generation gen with token and returns the credential now
// in place with its generation. When gen was superseded meanwhile the newer
// credential wins and is returned instead. ok is false once the session has
// expired.
func (s *Session) rotate(gen uint64, token string) (string, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired {
		return "", 0, false
	}
	if s.gen == gen {
		s.token = token
		s.gen++
	}
	return s.token, s.gen, true
}

// clear drops the credential of generation gen. It reports true only for the
// call that actually cleared it.
func (s *Session) clear(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.expired {
		return false
	}
	s.token = ""
	s.expired = true
	return true
}

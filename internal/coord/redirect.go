package coord

import (
	"strconv"
	"time"
)

// RedirectTTL bounds how long a redirect marker stays valid. A client that
// takes longer than this to reconnect to its assigned worker starts over at
// the balancer.
const RedirectTTL = 6 * time.Second

// MarkRedirected records that the named client at ip was just pointed at a
// worker. Markers are counters: a household behind one IP can hold several
// at once.
func MarkRedirected(s Store, ip, username string) error {
	key := RedirectedKey(ip, username)
	if _, err := s.HIncr(key, "num", 1); err != nil {
		return err
	}
	if err := s.HSet(key, "date", strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		return err
	}
	return s.Expire(key, RedirectTTL)
}

// ConsumeRedirect spends one redirect marker for the client. Returns false
// when no live marker exists, meaning the client connected directly without
// passing through a balancer.
func ConsumeRedirect(s Store, ip, username string) (bool, error) {
	key := RedirectedKey(ip, username)
	fields, err := s.HGetAll(key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	num := int64(0)
	if v, ok := fields["num"]; ok {
		num, _ = strconv.ParseInt(v, 10, 64)
	}
	if num <= 0 {
		return false, nil
	}
	if num == 1 {
		if err := s.Del(key); err != nil {
			return false, err
		}
		return true, nil
	}
	if _, err := s.HIncr(key, "num", -1); err != nil {
		return false, err
	}
	return true, nil
}

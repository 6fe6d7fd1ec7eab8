package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ClientVersion is the dotted version a client declares during the hello
// handshake, packed into a single int32 on the wire.
type ClientVersion struct {
	Year     int
	Month    int
	Day      int
	Revision int
}

func (v ClientVersion) Encode() int32 {
	return int32(v.Year*25000 + v.Month*1800 + v.Day*50 + v.Revision)
}

func DecodeVersion(raw int32) ClientVersion {
	v := ClientVersion{}
	n := int(raw)
	v.Year = n / 25000
	n %= 25000
	v.Month = n / 1800
	n %= 1800
	v.Day = n / 50
	v.Revision = n % 50
	return v
}

func (v ClientVersion) String() string {
	if v.Revision == 0 {
		return fmt.Sprintf("%d.%d.%d", v.Year, v.Month, v.Day)
	}
	return fmt.Sprintf("%d.%d.%d.%d", v.Year, v.Month, v.Day, v.Revision)
}

// ParseVersion parses "2021.6.30" or "2021.6.30.1".
func ParseVersion(s string) (ClientVersion, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 && len(parts) != 4 {
		return ClientVersion{}, fmt.Errorf("invalid version %q", s)
	}

	nums := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return ClientVersion{}, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}

	v := ClientVersion{Year: nums[0], Month: nums[1], Day: nums[2]}
	if len(nums) == 4 {
		v.Revision = nums[3]
	}
	return v, nil
}

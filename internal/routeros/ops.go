package routeros

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// Menu paths used by the operations below.
const (
	MenuPPPSecret          = "/ppp/secret"
	MenuPPPProfile         = "/ppp/profile"
	MenuPPPActive          = "/ppp/active"
	MenuHotspotUser        = "/ip/hotspot/user"
	MenuHotspotUserProfile = "/ip/hotspot/user/profile"
	MenuHotspotProfile     = "/ip/hotspot/profile"
	MenuHotspotActive      = "/ip/hotspot/active"
	MenuInterface          = "/interface"
	MenuDHCPLease          = "/ip/dhcp-server/lease"
)

// Identity returns the router's system identity name.
func Identity(ctx context.Context, s Session) (string, error) {
	recs, err := s.Run(ctx, "/system/identity/print")
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", nil
	}
	return recs[0]["name"], nil
}

// Resource returns the router's resource counters.
func Resource(ctx context.Context, s Session) (Record, error) {
	recs, err := s.Run(ctx, "/system/resource/print")
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return Record{}, nil
	}
	return recs[0], nil
}

// Print lists every entry of menu.
func Print(ctx context.Context, s Session, menu string) ([]Record, error) {
	return s.Run(ctx, menu+"/print")
}

// FindIDs returns the .id of every entry of menu whose key equals value.
func FindIDs(ctx context.Context, s Session, menu, key, value string) ([]string, error) {
	recs, err := s.Run(ctx, menu+"/print", "?"+key+"="+value, "=.proplist=.id")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		if id := r[".id"]; id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Add creates an entry in menu. Empty attribute values are omitted.
func Add(ctx context.Context, s Session, menu string, attrs map[string]string) error {
	_, err := s.Run(ctx, menu+"/add", words(attrs)...)
	return err
}

// SetByName updates the entry of menu named name.
func SetByName(ctx context.Context, s Session, menu, key, name string, attrs map[string]string) error {
	id, err := findOne(ctx, s, menu, key, name)
	if err != nil {
		return err
	}
	args := append([]string{"=.id=" + id}, words(attrs)...)
	_, err = s.Run(ctx, menu+"/set", args...)
	return err
}

// RemoveByName deletes the entry of menu named name. A missing entry is a
// DeviceError.
func RemoveByName(ctx context.Context, s Session, menu, key, name string) error {
	id, err := findOne(ctx, s, menu, key, name)
	if err != nil {
		return err
	}
	_, err = s.Run(ctx, menu+"/remove", "=.id="+id)
	return err
}

// RemoveAll deletes every entry of menu matching key=value and returns how
// many were removed. No match is not an error.
func RemoveAll(ctx context.Context, s Session, menu, key, value string) (int, error) {
	ids, err := FindIDs(ctx, s, menu, key, value)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := s.Run(ctx, menu+"/remove", "=.id="+id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// SetSecretProfile assigns profile to the PPPoE secret username.
func SetSecretProfile(ctx context.Context, s Session, username, profile string) error {
	return SetByName(ctx, s, MenuPPPSecret, "name", username, map[string]string{"profile": profile})
}

// KickPPP drops the live PPP sessions of username.
func KickPPP(ctx context.Context, s Session, username string) (int, error) {
	return RemoveAll(ctx, s, MenuPPPActive, "name", username)
}

// KickHotspot drops the live hotspot sessions of username.
func KickHotspot(ctx context.Context, s Session, username string) (int, error) {
	return RemoveAll(ctx, s, MenuHotspotActive, "user", username)
}

// SetHotspotUserDisabled enables or disables a hotspot account.
func SetHotspotUserDisabled(ctx context.Context, s Session, username string, disabled bool) error {
	value := "no"
	if disabled {
		value = "yes"
	}
	return SetByName(ctx, s, MenuHotspotUser, "name", username, map[string]string{"disabled": value})
}

// Ping sends count echo requests from the router to address.
func Ping(ctx context.Context, s Session, address string, count int) ([]Record, error) {
	return s.Run(ctx, "/ping", "=address="+address, "=count="+strconv.Itoa(count))
}

// LogTail returns at most limit of the newest log entries. The API has no
// way to ask for the last N entries, so the reply is narrowed to the
// displayed columns and the tail is cut here.
func LogTail(ctx context.Context, s Session, limit int) ([]Record, error) {
	recs, err := s.Run(ctx, "/log/print", "=.proplist=time,topics,message")
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}

// Traffic samples the current rx/tx rate of iface once.
func Traffic(ctx context.Context, s Session, iface string) (Record, error) {
	recs, err := s.Run(ctx, "/interface/monitor-traffic", "=interface="+iface, "=once=")
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return Record{}, nil
	}
	return recs[0], nil
}

func findOne(ctx context.Context, s Session, menu, key, value string) (string, error) {
	ids, err := FindIDs(ctx, s, menu, key, value)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", &DeviceError{Command: menu, Message: fmt.Sprintf("no such item (%s=%s)", key, value)}
	}
	return ids[0], nil
}

func words(attrs map[string]string) []string {
	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, "="+k+"="+attrs[k])
	}
	return out
}

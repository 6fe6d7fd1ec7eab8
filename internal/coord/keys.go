package coord

import "fmt"

// Key builders for the shared namespace. Every node and balancer in a
// cluster must agree on these shapes, so they live here and nowhere else.

// RoomKey maps a game code to the "ip:port" of the node hosting it.
func RoomKey(code string) string {
	return "room." + code
}

// ConnectionsKey counts identified clients from one remote IP on a node.
func ConnectionsKey(ip string) string {
	return "connections." + ip
}

// RedirectedKey is the hash the balancer writes before answering with a
// redirect, proving to the worker that the client went through the front
// door. Scoped by username so clients sharing a NAT don't spend each
// other's markers.
func RedirectedKey(ip, username string) string {
	return fmt.Sprintf("redirected.%s.%s", ip, username)
}

// BanKey marks a remote IP as banned; the value is the reason.
func BanKey(ip string) string {
	return "ban." + ip
}

// InfractionsKey is the hash of per-rule violation counts for one client
// at a remote IP.
func InfractionsKey(ip string, clientID int32) string {
	return fmt.Sprintf("infractions.%s.%d", ip, clientID)
}

// NodeStatsKey is where a worker publishes its load for balancer visibility.
func NodeStatsKey(node string) string {
	return "node." + node
}

package balancer

import (
	"math/rand"
	"testing"

	"github.com/mirahq/mira/pkg/config"
)

func TestSplitPlacement(t *testing.T) {
	ip, port, err := splitPlacement("10.0.0.5:22023")
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if ip != "10.0.0.5" || port != 22023 {
		t.Fatalf("got %s:%d", ip, port)
	}

	if _, _, err := splitPlacement("10.0.0.5"); err == nil {
		t.Fatal("missing port must fail")
	}
	if _, _, err := splitPlacement("10.0.0.5:notaport"); err == nil {
		t.Fatal("non-numeric port must fail")
	}
	if _, _, err := splitPlacement("10.0.0.5:99999"); err == nil {
		t.Fatal("port out of range must fail")
	}
}

func TestPickCoversEveryPort(t *testing.T) {
	cfg := config.Default()
	cfg.Balancer.Clusters = []config.ClusterConfig{
		{Name: "alpha", IP: "10.0.0.1", Ports: []int{22023, 22024}},
		{Name: "beta", IP: "10.0.0.2", Ports: []int{22023}},
	}
	b := &Balancer{cfg: cfg, rng: rand.New(rand.NewSource(1))}

	type target struct {
		ip   string
		port uint16
	}
	seen := make(map[target]int)
	for i := 0; i < 300; i++ {
		cluster, port := b.pick()
		seen[target{cluster.IP, port}]++
	}

	want := []target{
		{"10.0.0.1", 22023},
		{"10.0.0.1", 22024},
		{"10.0.0.2", 22023},
	}
	for _, tg := range want {
		if seen[tg] == 0 {
			t.Fatalf("port %v never picked: %v", tg, seen)
		}
	}
	if len(seen) != len(want) {
		t.Fatalf("picked targets outside the configuration: %v", seen)
	}
}

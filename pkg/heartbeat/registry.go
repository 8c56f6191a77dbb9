// Package heartbeat implements the Heartbeat Aggregator: ingest of
// liveness reports from a fixed set of peer agents, silent-peer
// detection, and durable storage of every record received.
package heartbeat

// Peer is one entry in the fixed AgentRegistry. The registry membership
// is closed — these are the only peers the aggregator expects to hear
// from — per spec.md §3/§4.4, grounded on the original nexus
// heartbeat.py AGENTS map.
type Peer struct {
	ID   string
	Name string
}

// Registry is the fixed, closed set of peer agents this aggregator
// tracks.
var Registry = []Peer{
	{ID: "a1e4b6d2-3f2a-4c1e-9b7a-0d5c8e2f1a11", Name: "NEXUS"},
	{ID: "b2f5c7e3-4a3b-4d2f-ac8b-1e6d9f3a2b22", Name: "ATLAS"},
	{ID: "c3a6d8f4-5b4c-4e3a-bd9c-2f7eaf4b3c33", Name: "VOLT"},
	{ID: "d4b7e9a5-6c5d-4f4b-ceaf-3a8fba5c4d44", Name: "GUARDIAN"},
	{ID: "e5c8fab6-7d6e-4a5c-dfba-4b9acb6d5e55", Name: "SPARK"},
	{ID: "f6d9abc7-8e7f-4b6d-eacb-5cabdc7e6f66", Name: "SYNC"},
}

// PeerByID looks up a registry entry by its fixed agent id.
func PeerByID(id string) (Peer, bool) {
	for _, p := range Registry {
		if p.ID == id {
			return p, true
		}
	}
	return Peer{}, false
}

// PeerNames returns every peer's display name.
func PeerNames() []string {
	names := make([]string, len(Registry))
	for i, p := range Registry {
		names[i] = p.Name
	}
	return names
}

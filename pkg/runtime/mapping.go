package runtime

import "fmt"

// Mapping places one worker rank inside the cluster topology. WorldSize is
// the total rank count across all nodes and GPUsPerNode the accelerator
// count visible to each node. TPSize and PPSize describe the tensor- and
// pipeline-parallel split; both zero means the split is not tracked here.
type Mapping struct {
	WorldSize   int
	Rank        int
	GPUsPerNode int
	TPSize      int
	PPSize      int
}

func (m Mapping) Validate() error {
	if m.WorldSize < 1 {
		return fmt.Errorf("mapping: world size %d, want >= 1", m.WorldSize)
	}
	if m.Rank < 0 || m.Rank >= m.WorldSize {
		return fmt.Errorf("mapping: rank %d outside [0, %d)", m.Rank, m.WorldSize)
	}
	if m.GPUsPerNode < 1 {
		return fmt.Errorf("mapping: gpus per node %d, want >= 1", m.GPUsPerNode)
	}
	if m.TPSize != 0 || m.PPSize != 0 {
		if m.TPSize < 1 || m.PPSize < 1 {
			return fmt.Errorf("mapping: partial parallel split tp=%d pp=%d", m.TPSize, m.PPSize)
		}
		if m.TPSize*m.PPSize != m.WorldSize {
			return fmt.Errorf("mapping: tp %d x pp %d != world size %d", m.TPSize, m.PPSize, m.WorldSize)
		}
	}
	return nil
}

// LocalIndex is the node-local accelerator index this rank targets under
// self-managed binding. Call Validate first; GPUsPerNode must be >= 1.
func (m Mapping) LocalIndex() int {
	return m.Rank % m.GPUsPerNode
}

// TPRank is this rank's position within its tensor-parallel group.
func (m Mapping) TPRank() int {
	return m.Rank % m.tpSize()
}

// PPRank is this rank's pipeline stage.
func (m Mapping) PPRank() int {
	return m.Rank / m.tpSize()
}

func (m Mapping) tpSize() int {
	if m.TPSize > 0 {
		return m.TPSize
	}
	return m.WorldSize
}

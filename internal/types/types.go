// Package types holds the opaque identifiers shared by the node-side
// runtime interface and the cluster-side collector.
package types

import (
	"strings"

	"github.com/google/uuid"
)

// ResourcePrefix is prepended to a workload id to form the name of the
// cluster resource backing it.
const ResourcePrefix = "spawner-"

// NodeId identifies the host a workload container runs on.
type NodeId uint32

func NewNodeId(id uint32) NodeId {
	return NodeId(id)
}

func (n NodeId) Id() uint32 {
	return uint32(n)
}

// WorkloadId is the logical id of one running workload container.
type WorkloadId string

func NewWorkloadId(id string) WorkloadId {
	return WorkloadId(id)
}

// NewRandomWorkloadId returns a fresh unique workload id.
func NewRandomWorkloadId() WorkloadId {
	return WorkloadId(uuid.NewString())
}

func (w WorkloadId) String() string {
	return string(w)
}

// ToResourceName derives the cluster resource name for this workload.
func (w WorkloadId) ToResourceName() string {
	return ResourcePrefix + string(w)
}

// FromResourceName recovers the workload id from a cluster resource
// name. The second return value is false if the name does not carry the
// resource prefix.
func FromResourceName(resourceName string) (WorkloadId, bool) {
	id, ok := strings.CutPrefix(resourceName, ResourcePrefix)
	if !ok {
		return "", false
	}
	return WorkloadId(id), true
}

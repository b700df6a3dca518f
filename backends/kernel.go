// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/hetero/pkg/core/ranges"
)

// KernelID identifies a compiled kernel entry point: its name and the FNV-1a (32 bits) hash of the name.
type KernelID struct {
	Name string
	Hash uint32
}

// NewKernelID returns the KernelID for the given name.
func NewKernelID(name string) KernelID {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return KernelID{Name: name, Hash: h.Sum32()}
}

// String implements fmt.Stringer.
func (id KernelID) String() string {
	return fmt.Sprintf("%s#%08x", id.Name, id.Hash)
}

// Kernel is a compiled kernel entry point: either an ItemKernel or a GroupKernel.
type Kernel interface {
	isKernel()
}

// ItemKernel is executed once per work-item of a single task or of a flat (optionally offset) range.
type ItemKernel func(item Item, args Args)

// GroupKernel is executed once per work-group of an nd_range launch. It iterates over its items with
// Group.ForEachItem: consecutive ForEachItem calls are separated by an implicit group barrier.
type GroupKernel func(group *Group, args Args)

func (ItemKernel) isKernel()  {}
func (GroupKernel) isKernel() {}

var (
	muKernels sync.RWMutex
	kernels   = make(map[string]registeredKernel)
)

type registeredKernel struct {
	id     KernelID
	kernel Kernel
}

// RegisterKernel registers a kernel under the given name and returns its KernelID.
//
// It panics if the name was already registered: kernels are expected to be registered during package
// initialization, typically as:
//
//	var addKernel = backends.RegisterKernel("mypkg.add", backends.ItemKernel(func(item backends.Item, args backends.Args) { ... }))
func RegisterKernel(name string, kernel Kernel) KernelID {
	if kernel == nil {
		exceptions.Panicf("RegisterKernel(%q): nil kernel", name)
	}
	id := NewKernelID(name)
	muKernels.Lock()
	defer muKernels.Unlock()
	if _, found := kernels[name]; found {
		exceptions.Panicf("RegisterKernel(%q): kernel already registered", name)
	}
	kernels[name] = registeredKernel{id: id, kernel: kernel}
	return id
}

// LookupKernel resolves a KernelID to its entry point. An unknown name or a hash mismatch returns an *APIError.
func LookupKernel(backendName string, id KernelID) (Kernel, error) {
	muKernels.RLock()
	entry, found := kernels[id.Name]
	muKernels.RUnlock()
	if !found {
		return nil, NewAPIError(backendName, CodeKernelNotFound, "kernel %q not registered", id.Name)
	}
	if entry.id.Hash != id.Hash {
		return nil, NewAPIError(backendName, CodeKernelNotFound, "kernel %q hash mismatch: registered %08x, requested %08x",
			id.Name, entry.id.Hash, id.Hash)
	}
	return entry.kernel, nil
}

// LaunchKind is the kind of kernel launch.
type LaunchKind int

const (
	LaunchSingleTask LaunchKind = iota
	LaunchRange
	LaunchNDRange
)

//go:generate go tool enumer -type=LaunchKind -trimprefix=Launch -transform=snake -output=gen_launchkind_enumer.go kernel.go

// LaunchShape is the index space a kernel is executed over.
type LaunchShape struct {
	Kind LaunchKind

	// Global range and Offset of the launch. For a single task it is range{1}.
	Global ranges.Range
	Offset ranges.ID

	// Local range (work-group size), only for LaunchNDRange.
	Local ranges.Range

	// LocalMemBytes is the amount of local memory each work-group needs, see Arg.LocalOffset.
	LocalMemBytes int
}

// String implements fmt.Stringer.
func (s LaunchShape) String() string {
	switch s.Kind {
	case LaunchNDRange:
		return fmt.Sprintf("parallel_for %s", ranges.ND(s.Global, s.Local))
	case LaunchRange:
		if !s.Offset.IsZero() {
			return fmt.Sprintf("parallel_for %s offset %s", s.Global, s.Offset)
		}
		return fmt.Sprintf("parallel_for %s", s.Global)
	default:
		return s.Kind.String()
	}
}

// ArgKind is the kind of a kernel argument.
type ArgKind int

const (
	ArgBuffer ArgKind = iota
	ArgLocal
	ArgValue
)

// Arg is a bound kernel argument, as passed to Backend.Launch.
type Arg struct {
	Kind ArgKind

	// Buffer arguments: device memory holding a whole buffer of extent Extent, of which the kernel accesses
	// Range starting at Offset. ElemSize is the size in bytes of each element.
	Mem      Memory
	Extent   ranges.Range
	Offset   ranges.ID
	Range    ranges.Range
	ElemSize int

	// Local arguments: offset and size in bytes within the work-group local memory.
	LocalOffset, LocalBytes int

	// Value arguments: raw bytes of the value.
	Value []byte
}

// ResolvedArg is a resolved argument, as seen by the kernel.
type ResolvedArg struct {
	Kind ArgKind

	// Data is the whole buffer (for ArgBuffer), the local memory slice (for ArgLocal) or the value bytes.
	Data []byte

	Extent   ranges.Range
	Offset   ranges.ID
	Range    ranges.Range
	ElemSize int
}

// Index returns the linear element index in Data for id, relative to the argument's access offset.
func (a ResolvedArg) Index(id ranges.ID) int {
	values := id.Values()
	offsets := a.Offset.Values()
	sizes := a.Extent.Sizes()
	return (values[2] + offsets[2]) + (values[1]+offsets[1])*sizes[2] + (values[0]+offsets[0])*sizes[1]*sizes[2]
}

// Args are the resolved arguments of a kernel invocation, in binding order.
type Args []ResolvedArg

// Item is one work-item of a launch.
type Item struct {
	// ID is the global id of the item, including the launch offset.
	ID ranges.ID

	// Range is the global range of the launch and Offset its offset.
	Range  ranges.Range
	Offset ranges.ID

	// LocalID, LocalRange and GroupID are only set for nd_range launches.
	LocalID    ranges.ID
	LocalRange ranges.Range
	GroupID    ranges.ID
}

// Linear returns the linear index of the item within the launch range, ignoring the offset.
func (it Item) Linear() int {
	id, offset := it.ID.Values(), it.Offset.Values()
	return it.Range.Linear(ranges.I(id[0]-offset[0], id[1]-offset[1], id[2]-offset[2]))
}

// Group is a work-group of an nd_range launch.
type Group struct {
	ID          ranges.ID
	GroupRange  ranges.Range
	LocalRange  ranges.Range
	GlobalRange ranges.Range
}

// ForEachItem calls fn for each item of the group, in linear order.
func (g *Group) ForEachItem(fn func(item Item)) {
	groupID := g.ID.Values()
	local := g.LocalRange.Sizes()
	dims := g.GlobalRange.Dims()
	for idx := range g.LocalRange.Size() {
		localID := g.LocalRange.Delinearize(idx)
		lv := localID.Values()
		var global [ranges.MaxDims]int
		for axis := range ranges.MaxDims {
			global[axis] = groupID[axis]*local[axis] + lv[axis]
		}
		fn(Item{
			ID:         ranges.I(global[:dims]...),
			Range:      g.GlobalRange,
			Offset:     ranges.Zero(dims),
			LocalID:    localID,
			LocalRange: g.LocalRange,
			GroupID:    g.ID,
		})
	}
}

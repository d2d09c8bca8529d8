// Package patch resolves which incremental patches an installation needs
// and applies their payloads in place.
package patch

import (
	"sort"

	"github.com/xor-128/TheSims4Updater/internal/version"
)

// Descriptor describes one incremental patch from the manifest. Read-only
// after construction.
type Descriptor struct {
	From             version.Version
	To               version.Version
	Files            []string // opaque payload locators, in download order
	CompressedSize   int64
	UncompressedSize int64
}

// Chain is the ordered set of patches taking an installation to Latest.
type Chain struct {
	Patches []Descriptor
	Latest  version.Version
}

// UpToDate reports whether no patches need applying.
func (c Chain) UpToDate() bool { return len(c.Patches) == 0 }

// ResolveChain selects every descriptor whose From version has been reached
// or surpassed by the installed version and orders them ascending by From,
// which is the order they must be applied in. Latest is the maximum To over
// all descriptors, selected or not.
//
// The manifest is trusted to enumerate exactly the forward patches from any
// realistic starting point; contiguity of the chain is not validated.
//
// A nil installed version means the game is not installed; callers must
// take the full-install path instead of consulting the resolver.
func ResolveChain(installed *version.Version, descs []Descriptor) Chain {
	var chain Chain
	for _, d := range descs {
		if !d.To.IsZero() && (chain.Latest.IsZero() || chain.Latest.Less(d.To)) {
			chain.Latest = d.To
		}
		if installed != nil && installed.AtMost(d.From) {
			chain.Patches = append(chain.Patches, d)
		}
	}
	sort.SliceStable(chain.Patches, func(i, j int) bool {
		return chain.Patches[i].From.Less(chain.Patches[j].From)
	})
	return chain
}

// TotalCompressedSize sums the download size of the selected patches.
func (c Chain) TotalCompressedSize() int64 {
	var total int64
	for _, d := range c.Patches {
		total += d.CompressedSize
	}
	return total
}

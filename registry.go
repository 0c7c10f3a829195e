package fatx

import (
	"strconv"
	"strings"

	"github.com/dsoprea/go-logging"
)

// SignatureFactory produces one signature instance anchored at the given
// file-area offset of the given volume.
type SignatureFactory func(offset int64, volume *FatXVolume) Signature

// RegisteredSignature pairs a signature type name with its factory.
type RegisteredSignature struct {
	Name    string
	Factory SignatureFactory
}

var (
	signatureRegistry = make([]RegisteredSignature, 0)

	// signatureCounters backs auto-naming: one 1-based counter per signature
	// type, spanning one scan run. The counters live here rather than on the
	// signature types so there is no hidden state attached to a type.
	signatureCounters = make(map[string]int)
)

// RegisterSignature adds a signature type to the registry. Concrete types
// call this from an init function, so the whole set is discoverable without
// any manual wiring by the scan driver.
func RegisterSignature(name string, factory SignatureFactory) {
	if name == "" || factory == nil {
		log.Panicf("signature registration requires a name and a factory")
	}

	for _, rs := range signatureRegistry {
		if rs.Name == name {
			log.Panicf("signature already registered: [%s]", name)
		}
	}

	signatureRegistry = append(signatureRegistry, RegisteredSignature{
		Name:    name,
		Factory: factory,
	})
}

// RegisteredSignatures returns every registered signature type. No ordering
// is guaranteed beyond "all registered types are visited".
func RegisteredSignatures() []RegisteredSignature {
	registered := make([]RegisteredSignature, len(signatureRegistry))
	copy(registered, signatureRegistry)

	return registered
}

// generateSignatureName returns the next auto-generated name for the given
// signature type: the lowercased type name joined with a monotonically
// increasing, 1-based counter.
func generateSignatureName(typeName string) string {
	signatureCounters[typeName]++

	return strings.ToLower(typeName) + strconv.Itoa(signatureCounters[typeName])
}

// ResetSignatureNaming starts a new scan run: every per-type naming counter
// begins again at one.
func ResetSignatureNaming() {
	signatureCounters = make(map[string]int)
}

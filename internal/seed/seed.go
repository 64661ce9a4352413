// Package seed derives independent, reproducible random streams per company.
//
// Every (run seed, company key, stream name) triple maps to its own PCG
// generator, so the number of draws taken in one stream or by one company
// never shifts the values seen by another, regardless of worker scheduling.
package seed

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// StreamName identifies a purpose-specific random stream.
type StreamName string

// Streams used by the simulation.
const (
	StreamEntry   StreamName = "entry"
	StreamFunnel  StreamName = "funnel"
	StreamRevenue StreamName = "revenue"
	StreamProfile StreamName = "profile"
)

const separator = 0x1f

// idNamespace scopes deterministic deal and billing IDs.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/sells-group/dealgen"))

// Controller hands out streams for one run seed. It holds no mutable state
// and is safe for concurrent use.
type Controller struct {
	runSeed uint64
}

// NewController creates a Controller for the given run seed.
func NewController(runSeed uint64) *Controller {
	return &Controller{runSeed: runSeed}
}

// RunSeed returns the run seed.
func (c *Controller) RunSeed() uint64 { return c.runSeed }

// Stream returns a fresh stream for the company key and stream name. Calling
// it twice with the same arguments yields two streams with identical output.
func (c *Controller) Stream(key string, name StreamName) *Stream {
	material := c.material(key, string(name))
	hi := xxhash.Sum64(material)
	lo := xxhash.Sum64(append(append(material, separator), "pcg"...))
	return &Stream{r: rand.New(rand.NewPCG(hi, lo))}
}

// Set bundles the streams one company consumes.
type Set struct {
	Entry   *Stream
	Funnel  *Stream
	Revenue *Stream
	Profile *Stream
}

// Streams returns all streams for one company key.
func (c *Controller) Streams(key string) Set {
	return Set{
		Entry:   c.Stream(key, StreamEntry),
		Funnel:  c.Stream(key, StreamFunnel),
		Revenue: c.Stream(key, StreamRevenue),
		Profile: c.Stream(key, StreamProfile),
	}
}

// ID returns a deterministic UUIDv5 for an entity of the given kind
// ("deal", "billing") belonging to the company key.
func (c *Controller) ID(key, kind string) string {
	return uuid.NewSHA1(idNamespace, c.material(key, kind)).String()
}

func (c *Controller) material(key, name string) []byte {
	buf := make([]byte, 8, 8+len(key)+1+len(name)+4)
	binary.BigEndian.PutUint64(buf, c.runSeed)
	buf = append(buf, key...)
	buf = append(buf, separator)
	buf = append(buf, name...)
	return buf
}

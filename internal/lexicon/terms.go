package lexicon

import (
	"github.com/aleksaelezovic/quadstore/internal/docstore"
)

// Kind tags the term collection an OID belongs to
type Kind uint8

const (
	KindURI Kind = iota + 1
	KindLiteral
	KindBlank
)

func (k Kind) String() string {
	switch k {
	case KindURI:
		return "uri"
	case KindLiteral:
		return "literal"
	case KindBlank:
		return "blank"
	default:
		return "unknown"
	}
}

// NotFound is returned by lookups for values that were never registered
const NotFound int64 = -1

// TermRef is a kind-tagged OID. The zero TermRef denotes an absent term.
type TermRef struct {
	Kind Kind
	OID  int64
}

func URI(oid int64) TermRef     { return TermRef{Kind: KindURI, OID: oid} }
func Literal(oid int64) TermRef { return TermRef{Kind: KindLiteral, OID: oid} }
func Blank(oid int64) TermRef   { return TermRef{Kind: KindBlank, OID: oid} }

// QuadTerms holds the kind-tagged terms of one quad
type QuadTerms struct {
	Subject   TermRef
	Predicate TermRef
	Object    TermRef
	Graph     TermRef
}

func (q QuadTerms) refs() [4]TermRef {
	return [4]TermRef{q.Subject, q.Predicate, q.Object, q.Graph}
}

// Collection names, shared with the persisted layout
const (
	graphsCollection   = "knownGraphs"
	urisCollection     = "uris"
	literalsCollection = "literals"
	blanksCollection   = "blanks"

	sharedSequence = "oids"
)

type graphRecord struct {
	OID int64  `msgpack:"oid"`
	URI string `msgpack:"uri"`
}

func (g *graphRecord) Fields() docstore.Fields {
	return docstore.Fields{"oid": docstore.Int(g.OID)}
}

// counted is embedded by every term record: the autoincrement OID and the
// number of registrations past the first.
type counted struct {
	ID      int64 `msgpack:"id"`
	Counter int64 `msgpack:"counter"`
}

func (c *counted) SetID(id int64) {
	c.ID = id
}

type uriRecord struct {
	counted
	URI string `msgpack:"uri"`
}

func (u *uriRecord) Fields() docstore.Fields {
	return docstore.Fields{"uri": docstore.String(u.URI)}
}

type literalRecord struct {
	counted
	Literal string `msgpack:"literal"`
}

func (l *literalRecord) Fields() docstore.Fields {
	return docstore.Fields{"literal": docstore.String(l.Literal)}
}

type blankRecord struct {
	counted
	Label string `msgpack:"label"`
}

func (b *blankRecord) Fields() docstore.Fields {
	return docstore.Fields{"label": docstore.String(b.Label)}
}

func collectionSpecs(shared bool) []docstore.Spec {
	sequence := ""
	if shared {
		sequence = sharedSequence
	}
	return []docstore.Spec{
		{Name: graphsCollection, UniqueKey: "oid"},
		{Name: urisCollection, UniqueKey: "uri", AutoIncrement: true, Sequence: sequence},
		{Name: literalsCollection, UniqueKey: "literal", AutoIncrement: true, Sequence: sequence},
		{Name: blanksCollection, UniqueKey: "label", AutoIncrement: true, Sequence: sequence},
	}
}

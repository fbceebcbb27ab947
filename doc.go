/*
Package flatdb implements a small embedded document store that keeps each
collection in a single flat file (or a Bolt bucket, or an S3 object).

We implement:

1. Schema-less records (Value, Object) with insertion-ordered fields.

2. Paths like "a.b[2].c" addressing nested values, see ParsePath.

3. MongoDB-style update operators ($set, $inc, $push, ...), see Updater.

4. Equality queries accelerated by a per-collection secondary index, see
BuildIndex and EvaluateQuery.

5. A compact binary file format with light obfuscation, see Codec.

6. A Store tying it together on top of a pluggable Adapter.

# Technical Details

**Whole-collection I/O.**
A collection is always loaded and persisted as a whole. There is no journal
and no partial rewrite; a FileAdapter replaces the file atomically via a
temporary file and rename.

**Positions.**
Records are identified inside a loaded collection by their position. The
index maps field values to bitmaps of positions; an index built for an older
snapshot stays safe to use, since positions past the end are skipped and
appended records are always verified.

**Fingerprints.**
The index does not store values. It stores a 64-bit xxhash of the canonical
msgpack encoding of each value (sorted object keys, integral numbers as
integers), so equal values always share a fingerprint. Collisions only add
candidates, never drop them.

## Binary encoding

**Legacy stream**: records back to back, each preceded by one length byte.

**Widened stream**: the magic "FDB\x02", then records, each preceded by a
4-byte big-endian length.

**Record**: fields back to back:
1. Name length (1 byte) and name bytes.
2. Type tag (1 byte).
3. Payload: tag 1 is a big-endian int32, tag 2 one byte, tag 5 nothing,
tag 6 (widened only) a big-endian float64. Tags 0, 3, 4 and 7 carry a
4-byte length and that many bytes XORed with the key: string, array JSON,
object JSON and RFC 3339 time.
*/
package flatdb

package flowdecode

import "github.com/clarion-segmentation/clarion/pkg/models"

// Decoder-local error labels. ShortPacket, BadVersion, and TimeSkew are
// all surfaced to callers as models.MalformedRecord — the taxonomy in
// §7 keeps one dropped-and-counted kind for every parse failure;
// UnknownTemplate is handled separately since it is buffered, not
// dropped, unless its TTL expires.
var (
	errShortPacket = models.NewError(models.MalformedRecord, "short packet", nil)
	errBadVersion  = models.NewError(models.MalformedRecord, "unrecognized netflow/ipfix version", nil)
	errTimeSkew    = models.NewError(models.MalformedRecord, "flow timestamp outside tolerance window", nil)
)

// errUnknownTemplate reports that a data record referenced a template
// not yet cached; the record has been buffered for replay.
func errUnknownTemplate(key TemplateKey) error {
	return models.NewError(models.TemplateMissing, "data record precedes its template", nil)
}

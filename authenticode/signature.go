package authenticode

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"

	"github.com/pkg/errors"
	"go.mozilla.org/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	// PKCS#7 signedData content type, 1.2.840.113549.1.7.2.
	oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

	// SPC_INDIRECT_DATA_OBJID, 1.3.6.1.4.1.311.2.1.4. The signed content
	// of an Authenticode signature.
	oidSpcIndirectDataContent = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}

	// SPC_PE_IMAGE_DATA_OBJID, 1.3.6.1.4.1.311.2.1.15. Marks the digest
	// as covering a PE image.
	oidSpcPeImageData = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}
)

var digestAlgorithms = []struct {
	oid  asn1.ObjectIdentifier
	hash crypto.Hash
}{
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 5}, crypto.MD5},
	{asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}, crypto.SHA1},
	{asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}, crypto.SHA256},
	{asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}, crypto.SHA384},
	{asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}, crypto.SHA512},
}

func hashForOID(oid asn1.ObjectIdentifier) crypto.Hash {
	for _, alg := range digestAlgorithms {
		if oid.Equal(alg.oid) {
			return alg.hash
		}
	}
	return 0
}

// Signature is a parsed Authenticode signature: a PKCS#7 SignedData
// structure whose signed content is the digest of a PE image. Parsing
// does not verify the signature or the digest.
type Signature struct {
	// PKCS7 is the parsed SignedData structure, including the embedded
	// certificates and the signer information.
	PKCS7 *pkcs7.PKCS7

	// DigestAlgorithm is the hash algorithm the signature declares for
	// the image digest. It is zero if the algorithm is not recognized.
	DigestAlgorithm crypto.Hash

	// Digest is the image digest the signature declares.
	Digest []byte
}

// Certificates returns the certificates embedded in the signature.
// Authenticode signatures carry the signing certificate and usually its
// intermediates.
func (s *Signature) Certificates() []*x509.Certificate {
	return s.PKCS7.Certificates
}

// SignerCertificate returns the certificate of the signature's signer.
// It returns nil if the signature does not have exactly one signer or if
// the signer's certificate is not embedded.
func (s *Signature) SignerCertificate() *x509.Certificate {
	return s.PKCS7.GetOnlySigner()
}

// ParseSignature parses an Authenticode signature, the format carried by
// attribute certificates of type WinCertTypePKCSSignedData.
//
// The signature must be a DER encoded PKCS#7 SignedData structure whose
// content is an SpcIndirectDataContent declaring the digest of a PE
// image. Trailing data after the SignedData structure is ignored, as the
// certificate table entry is padded to an 8-byte boundary.
func ParseSignature(der []byte) (*Signature, error) {
	indirect, err := signedContent(der)
	if err != nil {
		return nil, err
	}
	hash, digest, err := parseIndirectDataContent(indirect)
	if err != nil {
		return nil, err
	}
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing PKCS#7 SignedData")
	}
	return &Signature{
		PKCS7:           p7,
		DigestAlgorithm: hash,
		Digest:          digest,
	}, nil
}

// signedContent walks the SignedData envelope down to the signed content
// and returns the contents of the SpcIndirectDataContent sequence.
//
//	ContentInfo ::= SEQUENCE {
//	    contentType ContentType,
//	    content     [0] EXPLICIT ANY DEFINED BY contentType }
//
//	SignedData ::= SEQUENCE {
//	    version          CMSVersion,
//	    digestAlgorithms DigestAlgorithmIdentifiers,
//	    encapContentInfo EncapsulatedContentInfo,
//	    ... }
//
// Authenticode deviates from PKCS#7 here: eContent is the
// SpcIndirectDataContent sequence itself, not an OCTET STRING.
func signedContent(der []byte) (cryptobyte.String, error) {
	input := cryptobyte.String(der)

	var contentInfo cryptobyte.String
	if !input.ReadASN1(&contentInfo, cryptobyte_asn1.SEQUENCE) {
		return nil, errors.New("malformed ContentInfo")
	}
	var contentType asn1.ObjectIdentifier
	if !contentInfo.ReadASN1ObjectIdentifier(&contentType) {
		return nil, errors.New("malformed ContentInfo content type")
	}
	if !contentType.Equal(oidSignedData) {
		return nil, errors.Errorf("content type %s is not supported", contentType)
	}

	var content, signedData cryptobyte.String
	if !contentInfo.ReadASN1(&content, cryptobyte_asn1.Tag(0).Constructed().ContextSpecific()) ||
		!content.ReadASN1(&signedData, cryptobyte_asn1.SEQUENCE) {
		return nil, errors.New("malformed SignedData")
	}
	if !signedData.SkipASN1(cryptobyte_asn1.INTEGER) ||
		!signedData.SkipASN1(cryptobyte_asn1.SET) {
		return nil, errors.New("malformed SignedData")
	}

	var encap cryptobyte.String
	if !signedData.ReadASN1(&encap, cryptobyte_asn1.SEQUENCE) {
		return nil, errors.New("malformed EncapsulatedContentInfo")
	}
	var eContentType asn1.ObjectIdentifier
	if !encap.ReadASN1ObjectIdentifier(&eContentType) {
		return nil, errors.New("malformed EncapsulatedContentInfo content type")
	}
	if !eContentType.Equal(oidSpcIndirectDataContent) {
		return nil, errors.Errorf("signed content type %s is not supported", eContentType)
	}

	var eContent, indirect cryptobyte.String
	if !encap.ReadASN1(&eContent, cryptobyte_asn1.Tag(0).Constructed().ContextSpecific()) ||
		!eContent.ReadASN1(&indirect, cryptobyte_asn1.SEQUENCE) {
		return nil, errors.New("malformed SpcIndirectDataContent")
	}
	return indirect, nil
}

// parseIndirectDataContent extracts the digest algorithm and digest from
// the contents of an SpcIndirectDataContent sequence.
//
//	SpcIndirectDataContent ::= SEQUENCE {
//	    data          SpcAttributeTypeAndOptionalValue,
//	    messageDigest DigestInfo }
func parseIndirectDataContent(indirect cryptobyte.String) (crypto.Hash, []byte, error) {
	var data cryptobyte.String
	if !indirect.ReadASN1(&data, cryptobyte_asn1.SEQUENCE) {
		return 0, nil, errors.New("malformed SpcAttributeTypeAndOptionalValue")
	}
	var dataType asn1.ObjectIdentifier
	if !data.ReadASN1ObjectIdentifier(&dataType) {
		return 0, nil, errors.New("malformed SpcAttributeTypeAndOptionalValue type")
	}
	if !dataType.Equal(oidSpcPeImageData) {
		return 0, nil, errors.Errorf("signed data type %s is not a PE image digest", dataType)
	}

	var digestInfo, algorithm cryptobyte.String
	if !indirect.ReadASN1(&digestInfo, cryptobyte_asn1.SEQUENCE) {
		return 0, nil, errors.New("malformed DigestInfo")
	}
	if !digestInfo.ReadASN1(&algorithm, cryptobyte_asn1.SEQUENCE) {
		return 0, nil, errors.New("malformed AlgorithmIdentifier")
	}
	var algOID asn1.ObjectIdentifier
	if !algorithm.ReadASN1ObjectIdentifier(&algOID) {
		return 0, nil, errors.New("malformed AlgorithmIdentifier")
	}
	var digest []byte
	if !digestInfo.ReadASN1Bytes(&digest, cryptobyte_asn1.OCTET_STRING) {
		return 0, nil, errors.New("malformed DigestInfo digest")
	}
	return hashForOID(algOID), digest, nil
}

// Signature parses the entry's payload as an Authenticode signature.
//
// The entry's revision must be WinCertRevision20 and its certificate
// type must be WinCertTypePKCSSignedData; the revision is checked first.
// Parse failures are reported as a *SignatureError wrapping the cause.
func (c AttributeCertificate) Signature() (*Signature, error) {
	if c.Revision != WinCertRevision20 {
		return nil, &RevisionError{Revision: c.Revision}
	}
	if c.CertificateType != WinCertTypePKCSSignedData {
		return nil, &CertificateTypeError{CertificateType: c.CertificateType}
	}
	sig, err := ParseSignature(c.Data)
	if err != nil {
		return nil, &SignatureError{Err: err}
	}
	return sig, nil
}

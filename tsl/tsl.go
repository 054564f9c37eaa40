// Package tsl reads ETSI TS 119 612 trusted lists and turns them into the
// trust anchors used by the validation engine. A list may be a national
// trusted list or a list of the lists pointing to national lists.
package tsl

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PreferredLanguage is used when picking one of several multilingual names.
const PreferredLanguage = "en"

// Service type identifiers.
const (
	TrstSvcURIBase     = "http://uri.etsi.org/TrstSvc"
	TrustedListURIBase = TrstSvcURIBase + "/TrustedList"

	ServiceTypeCAQC   = TrstSvcURIBase + "/Svctype/CA/QC"
	ServiceTypeQTST   = TrstSvcURIBase + "/Svctype/TSA/QTST"
	ServiceTypeTSA    = TrstSvcURIBase + "/Svctype/TSA"
	ServiceTypeOCSPQC = TrstSvcURIBase + "/Svctype/Certstatus/OCSP/QC"
)

// Service status identifiers. The last three are the statuses used before
// eIDAS and still appear in service histories.
const (
	StatusGranted                   = TrustedListURIBase + "/Svcstatus/granted"
	StatusWithdrawn                 = TrustedListURIBase + "/Svcstatus/withdrawn"
	StatusUnderSupervision          = TrustedListURIBase + "/Svcstatus/undersupervision"
	StatusAccredited                = TrustedListURIBase + "/Svcstatus/accredited"
	StatusRecognisedAtNationalLevel = TrustedListURIBase + "/Svcstatus/recognisedatnationallevel"
)

// MimeType is the media type of XML trusted lists.
const MimeType = "application/vnd.etsi.tsl+xml"

// ErrNoServices is returned by Parse for a list with neither services nor
// pointers to other lists.
var ErrNoServices = errors.New("trusted list has no services and no pointers")

// DefaultServiceTypes are the service types whose certificates become trust
// anchors.
var DefaultServiceTypes = []string{ServiceTypeCAQC, ServiceTypeQTST, ServiceTypeTSA, ServiceTypeOCSPQC}

var trustedStatuses = map[string]bool{
	StatusGranted:                   true,
	StatusUnderSupervision:          true,
	StatusAccredited:                true,
	StatusRecognisedAtNationalLevel: true,
}

// IsTrustedStatus reports whether a service in this status may act as a
// trust anchor.
func IsTrustedStatus(status string) bool {
	return trustedStatuses[status]
}

// XML structures, limited to the elements the service needs.

type trustServiceStatusList struct {
	XMLName           xml.Name           `xml:"TrustServiceStatusList"`
	SchemeInformation *schemeInformation `xml:"SchemeInformation"`
	TSPList           *tspList           `xml:"TrustServiceProviderList"`
}

type schemeInformation struct {
	TSLSequenceNumber  int                 `xml:"TSLSequenceNumber"`
	TSLType            string              `xml:"TSLType"`
	SchemeOperatorName *internationalNames `xml:"SchemeOperatorName"`
	SchemeTerritory    string              `xml:"SchemeTerritory"`
	PointersToOtherTSL *otherTSLPointers   `xml:"PointersToOtherTSL"`
	ListIssueDateTime  string              `xml:"ListIssueDateTime"`
	NextUpdate         *nextUpdate         `xml:"NextUpdate"`
}

type internationalNames struct {
	Name []multiLangString `xml:"Name"`
}

type multiLangString struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type nextUpdate struct {
	DateTime string `xml:"dateTime"`
}

type otherTSLPointers struct {
	OtherTSLPointer []otherTSLPointer `xml:"OtherTSLPointer"`
}

type otherTSLPointer struct {
	ServiceDigitalIdentities *serviceDigitalIdentities `xml:"ServiceDigitalIdentities"`
	TSLLocation              string                    `xml:"TSLLocation"`
	AdditionalInformation    *additionalInformation    `xml:"AdditionalInformation"`
}

type serviceDigitalIdentities struct {
	ServiceDigitalIdentity []serviceDigitalIdentity `xml:"ServiceDigitalIdentity"`
}

type serviceDigitalIdentity struct {
	DigitalID []digitalIdentity `xml:"DigitalId"`
}

type digitalIdentity struct {
	X509Certificate string `xml:"X509Certificate"`
}

type additionalInformation struct {
	OtherInformation []otherInformation `xml:"OtherInformation"`
}

type otherInformation struct {
	SchemeTerritory string `xml:"SchemeTerritory"`
	MimeType        string `xml:"MimeType"`
}

type tspList struct {
	TSP []trustServiceProvider `xml:"TrustServiceProvider"`
}

type trustServiceProvider struct {
	TSPInformation *tspInformation `xml:"TSPInformation"`
	TSPServices    *tspServices    `xml:"TSPServices"`
}

type tspInformation struct {
	TSPName *internationalNames `xml:"TSPName"`
}

type tspServices struct {
	TSPService []tspService `xml:"TSPService"`
}

type tspService struct {
	ServiceInformation *serviceInformation `xml:"ServiceInformation"`
}

type serviceInformation struct {
	ServiceTypeIdentifier  string                  `xml:"ServiceTypeIdentifier"`
	ServiceName            *internationalNames     `xml:"ServiceName"`
	ServiceDigitalIdentity *serviceDigitalIdentity `xml:"ServiceDigitalIdentity"`
	ServiceStatus          string                  `xml:"ServiceStatus"`
	StatusStartingTime     string                  `xml:"StatusStartingTime"`
}

// TrustedList is a parsed trusted list.
type TrustedList struct {
	Territory      string
	Operator       string
	SequenceNumber int
	IssueDate      time.Time
	// NextUpdate is zero for a closed list.
	NextUpdate time.Time
	Services   []Service
	Pointers   []Pointer
}

// Service is one trust service of a provider.
type Service struct {
	Provider     string
	Name         string
	Type         string
	Status       string
	StatusStart  time.Time
	Certificates []*x509.Certificate
}

// Pointer references another trusted list from a list of the lists.
type Pointer struct {
	Location  string
	Territory string
	MimeType  string
	// SignerCertificates verify the signature of the referenced list.
	SignerCertificates []*x509.Certificate
}

// ParseError is a problem with one entry of a trusted list. Parse skips such
// entries and reports them alongside the list.
type ParseError struct {
	Entry   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entry, e.Message)
}

// Parse reads a trusted list. Services with unreadable data are skipped and
// returned as ParseErrors; a document that is not a trusted list fails.
func Parse(data []byte) (*TrustedList, []*ParseError, error) {
	var doc trustServiceStatusList
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse trusted list XML: %w", err)
	}
	if doc.SchemeInformation == nil {
		return nil, nil, errors.New("no scheme information found")
	}

	si := doc.SchemeInformation
	tl := &TrustedList{
		Territory:      strings.TrimSpace(si.SchemeTerritory),
		SequenceNumber: si.TSLSequenceNumber,
	}
	if si.SchemeOperatorName != nil {
		tl.Operator = extractFromIntlString(si.SchemeOperatorName.Name)
	}

	var errs []*ParseError
	if si.ListIssueDateTime != "" {
		t, err := parseDateTime(si.ListIssueDateTime)
		if err != nil {
			errs = append(errs, &ParseError{Entry: "ListIssueDateTime", Message: err.Error()})
		}
		tl.IssueDate = t
	}
	if si.NextUpdate != nil && si.NextUpdate.DateTime != "" {
		t, err := parseDateTime(si.NextUpdate.DateTime)
		if err != nil {
			errs = append(errs, &ParseError{Entry: "NextUpdate", Message: err.Error()})
		}
		tl.NextUpdate = t
	}

	tl.Pointers, errs = parsePointers(si.PointersToOtherTSL, errs)
	tl.Services, errs = parseServices(doc.TSPList, errs)

	if len(tl.Services) == 0 && len(tl.Pointers) == 0 {
		return nil, errs, ErrNoServices
	}
	return tl, errs, nil
}

func parsePointers(pointers *otherTSLPointers, errs []*ParseError) ([]Pointer, []*ParseError) {
	if pointers == nil {
		return nil, errs
	}
	var out []Pointer
	for _, p := range pointers.OtherTSLPointer {
		location := strings.TrimSpace(p.TSLLocation)
		if location == "" {
			continue
		}
		ptr := Pointer{Location: location}
		if p.AdditionalInformation != nil {
			for _, other := range p.AdditionalInformation.OtherInformation {
				if other.SchemeTerritory != "" {
					ptr.Territory = strings.TrimSpace(other.SchemeTerritory)
				}
				if other.MimeType != "" {
					ptr.MimeType = strings.TrimSpace(other.MimeType)
				}
			}
		}
		// PDF renditions of the same list are listed next to the XML one.
		if ptr.MimeType != "" && ptr.MimeType != MimeType {
			continue
		}
		if p.ServiceDigitalIdentities != nil {
			for _, sdi := range p.ServiceDigitalIdentities.ServiceDigitalIdentity {
				certs, err := parseCertificates(&sdi)
				if err != nil {
					errs = append(errs, &ParseError{Entry: "pointer " + location, Message: err.Error()})
					continue
				}
				ptr.SignerCertificates = append(ptr.SignerCertificates, certs...)
			}
		}
		out = append(out, ptr)
	}
	return out, errs
}

func parseServices(list *tspList, errs []*ParseError) ([]Service, []*ParseError) {
	if list == nil {
		return nil, errs
	}
	var out []Service
	for _, tsp := range list.TSP {
		provider := "unknown"
		if tsp.TSPInformation != nil && tsp.TSPInformation.TSPName != nil {
			provider = extractFromIntlString(tsp.TSPInformation.TSPName.Name)
		}
		if tsp.TSPServices == nil {
			continue
		}
		for _, svc := range tsp.TSPServices.TSPService {
			info := svc.ServiceInformation
			if info == nil {
				continue
			}
			name := "unknown"
			if info.ServiceName != nil {
				name = extractFromIntlString(info.ServiceName.Name)
			}
			certs, err := parseCertificates(info.ServiceDigitalIdentity)
			if err != nil {
				errs = append(errs, &ParseError{Entry: provider + "/" + name, Message: err.Error()})
				continue
			}
			start, err := parseDateTime(info.StatusStartingTime)
			if err != nil {
				errs = append(errs, &ParseError{Entry: provider + "/" + name, Message: err.Error()})
				continue
			}
			out = append(out, Service{
				Provider:     provider,
				Name:         name,
				Type:         strings.TrimSpace(info.ServiceTypeIdentifier),
				Status:       strings.TrimSpace(info.ServiceStatus),
				StatusStart:  start,
				Certificates: certs,
			})
		}
	}
	return out, errs
}

// TrustAnchors returns the certificates of services in a trusted status
// whose type is one of serviceTypes. A nil serviceTypes uses
// DefaultServiceTypes.
func (l *TrustedList) TrustAnchors(serviceTypes []string) []*x509.Certificate {
	if serviceTypes == nil {
		serviceTypes = DefaultServiceTypes
	}
	accepted := make(map[string]bool, len(serviceTypes))
	for _, t := range serviceTypes {
		accepted[t] = true
	}
	var certs []*x509.Certificate
	for _, svc := range l.Services {
		if !accepted[svc.Type] || !IsTrustedStatus(svc.Status) {
			continue
		}
		certs = append(certs, svc.Certificates...)
	}
	return certs
}

// Expired reports whether the list is past its next update at now.
func (l *TrustedList) Expired(now time.Time) bool {
	return !l.NextUpdate.IsZero() && now.After(l.NextUpdate)
}

// extractFromIntlString picks the preferred language, falling back to the
// first name.
func extractFromIntlString(names []multiLangString) string {
	if len(names) == 0 {
		return "unknown"
	}
	for _, name := range names {
		if strings.EqualFold(name.Lang, PreferredLanguage) {
			return strings.TrimSpace(name.Value)
		}
	}
	return strings.TrimSpace(names[0].Value)
}

func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty datetime")
	}
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse datetime: %s", s)
}

func parseCertificates(sdi *serviceDigitalIdentity) ([]*x509.Certificate, error) {
	if sdi == nil {
		return nil, nil
	}
	var certs []*x509.Certificate
	for _, did := range sdi.DigitalID {
		if did.X509Certificate == "" {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(did.X509Certificate), ""))
		if err != nil {
			return nil, fmt.Errorf("invalid certificate encoding: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("invalid certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

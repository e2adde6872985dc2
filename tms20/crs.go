package tms20

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/perimeterx/marshmallow"
)

// CRS is one of the three coordinate reference system encodings (oneOf) of the TMS standard.
type CRS interface {
	Description() string
	AuthorityName() string
	AuthorityCode() string
}

var (
	crsURIRegexURL = regexp.MustCompile("https?://.+/def/crs/(?P<authority>[^/]+)/[^/]+/(?P<code>[^/]+)$")
	crsURIRegexURN = regexp.MustCompile("^urn:ogc:def:crs:(?P<authority>[^:]+)::(?P<code>[^:]+)$")
)

// unmarshalCRS tries the CRS types in order and keeps the first that fits
func unmarshalCRS(rawCrs interface{}) (CRS, error) {
	var rawCrsMap map[string]interface{}
	rawCrsString, asString := rawCrs.(string)
	if asString {
		rawCrsMap = map[string]interface{}{"uri": rawCrsString}
	} else {
		var ok bool
		rawCrsMap, ok = rawCrs.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf(`wrong type key "crs": %T`, rawCrs)
		}
	}

	var uriCrs URICRS
	uriErr := uriCrs.UnmarshalJSONFromMap(rawCrsMap)
	if uriErr == nil {
		uriCrs.asString = asString
		return &uriCrs, nil
	}

	var wktCrs WKTCRS
	wktErr := wktCrs.UnmarshalJSONFromMap(rawCrsMap)
	if wktErr == nil {
		return &wktCrs, nil
	}

	var referenceSystemCrs ReferenceSystemCRS
	rsErr := referenceSystemCrs.UnmarshalJSONFromMap(rawCrsMap)
	if rsErr == nil {
		return &referenceSystemCrs, nil
	}

	return nil, fmt.Errorf(`could not unmarshal crs into any CRS type: %w`, errors.Join(uriErr, wktErr, rsErr))
}

// sameCRS compares two CRSs by authority, which is what matters for tiling
func sameCRS(a, b CRS) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AuthorityName() == b.AuthorityName() && a.AuthorityCode() == b.AuthorityCode()
}

func asMap(data interface{}) (map[string]interface{}, error) {
	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf(`data is not a map but a %T`, data)
	}
	return dataMap, nil
}

func optionalString(dataMap map[string]interface{}, key string) (string, error) {
	raw, ok := dataMap[key]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf(`%s property is not a string but a %T`, key, raw)
	}
	return s, nil
}

func requiredObject(dataMap map[string]interface{}, key string) (map[string]interface{}, error) {
	raw, ok := dataMap[key]
	if !ok {
		return nil, fmt.Errorf(`%s property not found`, key)
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf(`%s property is not an object but a %T`, key, raw)
	}
	return obj, nil
}

// URICRS references a CRS by URI or URN, e.g. http://www.opengis.net/def/crs/EPSG/0/28992
type URICRS struct {
	description   string
	uri           string `validate:"required,uri"`
	authorityName string `validate:"required"`
	authorityCode string `validate:"required"`
	// Whether it should be marshalled as just a string
	asString bool
}

func (crs *URICRS) MarshalJSON() ([]byte, error) {
	if crs.asString {
		return json.Marshal(crs.uri)
	}
	return json.Marshal(struct {
		Description string `json:"description,omitempty"`
		URI         string `json:"uri"`
	}{
		Description: crs.description,
		URI:         crs.uri,
	})
}

func (crs *URICRS) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(crs, data)
}

func (crs *URICRS) UnmarshalJSONFromMap(data interface{}) error {
	dataMap, err := asMap(data)
	if err != nil {
		return err
	}
	if crs.description, err = optionalString(dataMap, "description"); err != nil {
		return err
	}

	rawURI, ok := dataMap["uri"]
	if !ok {
		return fmt.Errorf(`uri property not found`)
	}
	crs.uri, ok = rawURI.(string)
	if !ok {
		return fmt.Errorf(`uri property is not a string but a %T`, rawURI)
	}

	uriParts := crsURIRegexURL.FindStringSubmatch(crs.uri)
	if uriParts == nil {
		uriParts = crsURIRegexURN.FindStringSubmatch(crs.uri)
	}
	if uriParts == nil {
		return fmt.Errorf(`could not parse crs uri "%v"`, crs.uri)
	}
	crs.authorityName = uriParts[1]
	crs.authorityCode = uriParts[2]

	return validate.Struct(crs)
}

func (crs *URICRS) Description() string {
	return crs.description
}

func (crs *URICRS) AuthorityName() string {
	return crs.authorityName
}

func (crs *URICRS) AuthorityCode() string {
	return crs.authorityCode
}

// WKTCRS defines a CRS with PROJJSON. Only the identifier is interpreted, the rest is kept as is.
type WKTCRS struct {
	description string
	wkt         ProjJSON
	originalWKT map[string]interface{}
}

type ProjJSON struct {
	ID ProjJSONID `validate:"required" json:"id"`
}

type ProjJSONID struct {
	AuthorityName string      `validate:"required" json:"authority"`
	AuthorityCode json.Number `validate:"required" json:"code"`
}

func (crs *WKTCRS) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Description string                 `json:"description,omitempty"`
		WKT         map[string]interface{} `json:"wkt"`
	}{
		Description: crs.description,
		WKT:         crs.originalWKT,
	})
}

func (crs *WKTCRS) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(crs, data)
}

func (crs *WKTCRS) UnmarshalJSONFromMap(data interface{}) error {
	dataMap, err := asMap(data)
	if err != nil {
		return err
	}
	if crs.description, err = optionalString(dataMap, "description"); err != nil {
		return err
	}
	if crs.originalWKT, err = requiredObject(dataMap, "wkt"); err != nil {
		return err
	}

	rawID, err := requiredObject(crs.originalWKT, "id")
	if err != nil {
		return fmt.Errorf(`could not parse wkt as ProjJSON: %w`, err)
	}
	authority, _ := rawID["authority"].(string)
	var code json.Number
	switch c := rawID["code"].(type) {
	case string:
		code = json.Number(c)
	case float64:
		code = json.Number(fmt.Sprintf("%d", int64(c)))
	}
	crs.wkt = ProjJSON{ID: ProjJSONID{AuthorityName: authority, AuthorityCode: code}}

	return validate.Struct(crs.wkt)
}

func (crs *WKTCRS) Description() string {
	return crs.description
}

func (crs *WKTCRS) AuthorityName() string {
	return crs.wkt.ID.AuthorityName
}

func (crs *WKTCRS) AuthorityCode() string {
	return crs.wkt.ID.AuthorityCode.String()
}

// ReferenceSystemCRS is an ISO 19115 MD_ReferenceSystem.
// Its identifier is read from referenceSystemIdentifier.codeSpace and .code when present.
type ReferenceSystemCRS struct {
	description     string
	referenceSystem map[string]interface{} `validate:"required"`
}

func (crs *ReferenceSystemCRS) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Description     string                 `json:"description,omitempty"`
		ReferenceSystem map[string]interface{} `json:"referenceSystem"`
	}{
		Description:     crs.description,
		ReferenceSystem: crs.referenceSystem,
	})
}

func (crs *ReferenceSystemCRS) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(crs, data)
}

func (crs *ReferenceSystemCRS) UnmarshalJSONFromMap(data interface{}) error {
	dataMap, err := asMap(data)
	if err != nil {
		return err
	}
	if crs.description, err = optionalString(dataMap, "description"); err != nil {
		return err
	}
	crs.referenceSystem, err = requiredObject(dataMap, "referenceSystem")
	return err
}

func (crs *ReferenceSystemCRS) Description() string {
	return crs.description
}

func (crs *ReferenceSystemCRS) identifier(key string) string {
	id, ok := crs.referenceSystem["referenceSystemIdentifier"].(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := id[key].(string)
	return s
}

func (crs *ReferenceSystemCRS) AuthorityName() string {
	return crs.identifier("codeSpace")
}

func (crs *ReferenceSystemCRS) AuthorityCode() string {
	return crs.identifier("code")
}

// UnmarshalJSONMapUsingUnmarshalJSONFromMap lets types that can unmarshal from a generic map
// also implement json.Unmarshaler
func UnmarshalJSONMapUsingUnmarshalJSONFromMap(target marshmallow.UnmarshalerFromJSONMap, data []byte) error {
	var dataMap map[string]interface{}
	err := json.Unmarshal(data, &dataMap)
	if err != nil {
		return err
	}
	return target.UnmarshalJSONFromMap(dataMap)
}

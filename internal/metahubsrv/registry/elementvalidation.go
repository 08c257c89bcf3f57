package registry

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgtype"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

var (
	dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRegex = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)
)

// mergeElementData overlays the patch's top-level keys onto the existing
// payload. Updates validate the merged result, so a partial patch cannot
// sneak past required-field checks by omitting a field.
func mergeElementData(existing, patch []byte) ([]byte, apperrors.Error) {
	if len(existing) == 0 {
		existing = []byte(`{}`)
	}
	if !gjson.ValidBytes(patch) {
		return nil, ErrValidationFailed.Msg("element data is not valid JSON")
	}
	merged := existing
	var err error
	gjson.ParseBytes(patch).ForEach(func(key, value gjson.Result) bool {
		merged, err = sjson.SetRawBytes(merged, key.String(), []byte(value.Raw))
		return err == nil
	})
	if err != nil {
		return nil, ErrValidationFailed.Err(err)
	}
	return merged, nil
}

// validateElementData checks a full payload against the catalog's attribute
// definitions. attrs is the complete list for the object, roots first.
func validateElementData(attrs []*models.Attribute, data []byte) apperrors.Error {
	if !gjson.ValidBytes(data) {
		return ErrValidationFailed.Msg("element data is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return ErrValidationFailed.Msg("element data must be a JSON object")
	}

	children := make(map[string][]*models.Attribute)
	for _, a := range attrs {
		if a.ParentAttributeID.Valid {
			children[a.ParentAttributeID.UUID.String()] = append(children[a.ParentAttributeID.UUID.String()], a)
		}
	}

	for _, a := range attrs {
		if a.ParentAttributeID.Valid {
			continue
		}
		value := doc.Get(a.Codename)
		if a.DataType == mhcommon.DataTypeTable {
			if err := validateTableValue(a, children[a.AttributeID.String()], value); err != nil {
				return err
			}
			continue
		}
		if err := validateAttributeValue(a, value); err != nil {
			return err
		}
	}
	return nil
}

func validateTableValue(attr *models.Attribute, rowAttrs []*models.Attribute, value gjson.Result) apperrors.Error {
	if !value.Exists() || value.Type == gjson.Null {
		if attr.IsRequired {
			return requiredErr(attr)
		}
		return nil
	}
	if !value.IsArray() {
		return typeErr(attr, "an array of rows")
	}
	var err apperrors.Error
	value.ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			err = typeErr(attr, "an array of row objects")
			return false
		}
		for _, ra := range rowAttrs {
			if verr := validateAttributeValue(ra, row.Get(ra.Codename)); verr != nil {
				err = verr
				return false
			}
		}
		return true
	})
	return err
}

func validateAttributeValue(attr *models.Attribute, value gjson.Result) apperrors.Error {
	if !hasContent(attr.DataType, value) {
		if attr.IsRequired {
			return requiredErr(attr)
		}
		return nil
	}
	if err := checkType(attr, value); err != nil {
		return err
	}
	return checkRules(attr, value)
}

// hasContent decides presence. For localized strings any locale with
// non-blank content counts, not only the primary one.
func hasContent(t mhcommon.DataType, value gjson.Result) bool {
	if !value.Exists() || value.Type == gjson.Null {
		return false
	}
	switch t {
	case mhcommon.DataTypeLocalizedString:
		if !value.IsObject() {
			return value.Type == gjson.String && strings.TrimSpace(value.Str) != ""
		}
		found := false
		value.ForEach(func(_, v gjson.Result) bool {
			if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
				found = true
				return false
			}
			return true
		})
		return found
	case mhcommon.DataTypeString, mhcommon.DataTypeReference, mhcommon.DataTypeEnumeration,
		mhcommon.DataTypeDate, mhcommon.DataTypeTime, mhcommon.DataTypeDateTime:
		return value.Type != gjson.String || strings.TrimSpace(value.Str) != ""
	}
	return true
}

func checkType(attr *models.Attribute, value gjson.Result) apperrors.Error {
	switch attr.DataType {
	case mhcommon.DataTypeString:
		if value.Type != gjson.String {
			return typeErr(attr, "a string")
		}
	case mhcommon.DataTypeLocalizedString:
		if !value.IsObject() {
			return typeErr(attr, "an object keyed by locale")
		}
		ok := true
		value.ForEach(func(_, v gjson.Result) bool {
			ok = v.Type == gjson.String
			return ok
		})
		if !ok {
			return typeErr(attr, "string content per locale")
		}
	case mhcommon.DataTypeNumber:
		if value.Type != gjson.Number {
			return typeErr(attr, "a number")
		}
		if math.IsInf(value.Num, 0) || math.IsNaN(value.Num) {
			return typeErr(attr, "a finite number")
		}
	case mhcommon.DataTypeBoolean:
		if !value.IsBool() {
			return typeErr(attr, "a boolean")
		}
	case mhcommon.DataTypeDate:
		if value.Type != gjson.String || !dateRegex.MatchString(value.Str) {
			return typeErr(attr, "a YYYY-MM-DD date")
		}
		if _, err := time.Parse("2006-01-02", value.Str); err != nil {
			return typeErr(attr, "a valid calendar date")
		}
	case mhcommon.DataTypeTime:
		if value.Type != gjson.String || !timeRegex.MatchString(value.Str) {
			return typeErr(attr, "a HH:MM[:SS] time")
		}
		layout := "15:04"
		if len(value.Str) > 5 {
			layout = "15:04:05"
		}
		if _, err := time.Parse(layout, value.Str); err != nil {
			return typeErr(attr, "a valid time of day")
		}
	case mhcommon.DataTypeDateTime:
		if value.Type != gjson.String {
			return typeErr(attr, "an RFC 3339 timestamp")
		}
		if _, err := time.Parse(time.RFC3339, value.Str); err != nil {
			return typeErr(attr, "an RFC 3339 timestamp")
		}
	case mhcommon.DataTypeReference, mhcommon.DataTypeEnumeration:
		if value.Type != gjson.String {
			if value.IsArray() {
				ok := true
				value.ForEach(func(_, v gjson.Result) bool {
					ok = v.Type == gjson.String
					return ok
				})
				if ok {
					return nil
				}
			}
			return typeErr(attr, "a string id or array of string ids")
		}
	}
	return nil
}

// checkRules applies the attribute's declared validation rules to a value
// that already passed the type check.
func checkRules(attr *models.Attribute, value gjson.Result) apperrors.Error {
	if attr.ValidationRules.Status != pgtype.Present {
		return nil
	}
	rules := gjson.ParseBytes(attr.ValidationRules.Bytes)
	if !rules.IsObject() {
		return nil
	}

	switch attr.DataType {
	case mhcommon.DataTypeString, mhcommon.DataTypeLocalizedString:
		check := func(s string) apperrors.Error {
			if r := rules.Get("minLength"); r.Exists() && len([]rune(s)) < int(r.Int()) {
				return ruleErr(attr, fmt.Sprintf("shorter than %d characters", r.Int()))
			}
			if r := rules.Get("maxLength"); r.Exists() && len([]rune(s)) > int(r.Int()) {
				return ruleErr(attr, fmt.Sprintf("longer than %d characters", r.Int()))
			}
			if r := rules.Get("pattern"); r.Exists() {
				re, err := regexp.Compile(r.Str)
				if err != nil {
					return ruleErr(attr, "has an invalid pattern rule")
				}
				if !re.MatchString(s) {
					return ruleErr(attr, "does not match pattern "+r.Str)
				}
			}
			if r := rules.Get("options"); r.IsArray() {
				allowed := false
				r.ForEach(func(_, opt gjson.Result) bool {
					if opt.Str == s {
						allowed = true
						return false
					}
					return true
				})
				if !allowed {
					return ruleErr(attr, "is not one of the allowed options")
				}
			}
			return nil
		}
		if attr.DataType == mhcommon.DataTypeString {
			return check(value.Str)
		}
		var err apperrors.Error
		value.ForEach(func(_, v gjson.Result) bool {
			if strings.TrimSpace(v.Str) == "" {
				return true
			}
			err = check(v.Str)
			return err == nil
		})
		return err

	case mhcommon.DataTypeNumber:
		n := value.Num
		if r := rules.Get("min"); r.Exists() && n < r.Float() {
			return ruleErr(attr, fmt.Sprintf("below minimum %v", r.Float()))
		}
		if r := rules.Get("max"); r.Exists() && n > r.Float() {
			return ruleErr(attr, fmt.Sprintf("above maximum %v", r.Float()))
		}
		if r := rules.Get("nonNegative"); r.Bool() && n < 0 {
			return ruleErr(attr, "must not be negative")
		}
		if r := rules.Get("scale"); r.Exists() {
			if !scaleFits(value.Raw, int(r.Int())) {
				return ruleErr(attr, fmt.Sprintf("has more than %d decimal places", r.Int()))
			}
		}
		if r := rules.Get("precision"); r.Exists() {
			if !precisionFits(value.Raw, int(r.Int())) {
				return ruleErr(attr, fmt.Sprintf("has more than %d significant digits", r.Int()))
			}
		}
	}
	return nil
}

// scaleFits checks the literal's decimal places against the limit. The raw
// JSON literal is inspected so 1.10 and 1.1 are judged as written.
func scaleFits(raw string, scale int) bool {
	dot := strings.IndexByte(raw, '.')
	if dot < 0 {
		return true
	}
	frac := raw[dot+1:]
	if e := strings.IndexAny(frac, "eE"); e >= 0 {
		frac = frac[:e]
	}
	return len(frac) <= scale
}

func precisionFits(raw string, precision int) bool {
	digits := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits++
		}
		if r == 'e' || r == 'E' {
			break
		}
	}
	return digits <= precision
}

func requiredErr(attr *models.Attribute) apperrors.Error {
	return ErrValidationFailed.Msg("required attribute " + attr.Codename + " is missing")
}

func typeErr(attr *models.Attribute, want string) apperrors.Error {
	return ErrValidationFailed.Msg("attribute " + attr.Codename + " must be " + want)
}

func ruleErr(attr *models.Attribute, detail string) apperrors.Error {
	return ErrValidationFailed.Msg("attribute " + attr.Codename + " " + detail)
}

package attendance

import (
	"encoding/json"
	"strconv"
	"time"
)

// Attribute names of Record as exposed to filters, sorts and facets. This is
// the persisted attribute set; stores map each name to a column.
const (
	AttrAttendanceID   = "attendanceId"
	AttrTenantID       = "tenantId"
	AttrUserID         = "userId"
	AttrAttendanceDate = "attendanceDate"
	AttrAttendance     = "attendance"
	AttrRemark         = "remark"
	AttrLatitude       = "latitude"
	AttrLongitude      = "longitude"
	AttrImage          = "image"
	AttrMetaData       = "metaData"
	AttrSyncTime       = "syncTime"
	AttrSession        = "session"
	AttrContext        = "context"
	AttrContextID      = "contextId"
	AttrScope          = "scope"
	AttrCreatedAt      = "createdAt"
	AttrUpdatedAt      = "updatedAt"
	AttrCreatedBy      = "createdBy"
	AttrUpdatedBy      = "updatedBy"
)

// Attributes is the ordered attribute list.
var Attributes = []string{
	AttrAttendanceID, AttrTenantID, AttrUserID, AttrAttendanceDate, AttrAttendance,
	AttrRemark, AttrLatitude, AttrLongitude, AttrImage, AttrMetaData,
	AttrSyncTime, AttrSession, AttrContext, AttrContextID, AttrCreatedAt,
	AttrUpdatedAt, AttrCreatedBy, AttrUpdatedBy, AttrScope,
}

var attributeSet = func() map[string]bool {
	set := make(map[string]bool, len(Attributes))
	for _, a := range Attributes {
		set[a] = true
	}
	return set
}()

// Schema answers whether a name is a persisted attribute.
type Schema interface {
	HasAttribute(name string) bool
}

type recordSchema struct{}

func (recordSchema) HasAttribute(name string) bool { return attributeSet[name] }

// RecordSchema is the introspection view of Record.
var RecordSchema Schema = recordSchema{}

// Value returns the attribute value and whether it is set. Unset optional
// attributes (empty strings, nil pointers, zero times) report false.
func (r Record) Value(attr string) (any, bool) {
	str := func(s string) (any, bool) { return s, s != "" }

	switch attr {
	case AttrAttendanceID:
		return str(r.AttendanceID)
	case AttrTenantID:
		return str(r.TenantID)
	case AttrUserID:
		return str(r.UserID)
	case AttrAttendanceDate:
		return str(r.AttendanceDate)
	case AttrAttendance:
		return str(string(r.Attendance))
	case AttrRemark:
		return str(r.Remark)
	case AttrLatitude:
		if r.Latitude == nil {
			return nil, false
		}
		return *r.Latitude, true
	case AttrLongitude:
		if r.Longitude == nil {
			return nil, false
		}
		return *r.Longitude, true
	case AttrImage:
		return str(r.Image)
	case AttrMetaData:
		if r.MetaData == nil {
			return nil, false
		}
		return r.MetaData, true
	case AttrSyncTime:
		return str(r.SyncTime)
	case AttrSession:
		return str(r.Session)
	case AttrContext:
		return str(r.Context)
	case AttrContextID:
		return str(r.ContextID)
	case AttrScope:
		return str(string(r.Scope))
	case AttrCreatedAt:
		return r.CreatedAt, !r.CreatedAt.IsZero()
	case AttrUpdatedAt:
		return r.UpdatedAt, !r.UpdatedAt.IsZero()
	case AttrCreatedBy:
		return str(r.CreatedBy)
	case AttrUpdatedBy:
		return str(r.UpdatedBy)
	}
	return nil, false
}

// NullGroup labels the bucket of records with no value for the facet field.
const NullGroup = "null"

// FormatValue renders an attribute or filter value in canonical text form so
// values coming from JSON and from records compare equal.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return NullGroup
	case string:
		return x
	case Status:
		return string(x)
	case Scope:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return NullGroup
		}
		return string(b)
	}
}

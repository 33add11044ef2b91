package attendance

// Merge overlays the non-empty fields of an entry onto an existing record.
// The record is the base: identity (AttendanceID, TenantID), creation audit
// (CreatedBy, CreatedAt) and the natural key are never taken from the entry.
// Merge is pure; the caller stamps UpdatedBy and persists.
func Merge(base Record, overlay Entry) Record {
	out := base.Clone()

	if overlay.Attendance != "" {
		out.Attendance = overlay.Attendance
	}
	if overlay.Remark != "" {
		out.Remark = overlay.Remark
	}
	if overlay.Latitude != nil {
		v := *overlay.Latitude
		out.Latitude = &v
	}
	if overlay.Longitude != nil {
		v := *overlay.Longitude
		out.Longitude = &v
	}
	if overlay.Image != "" {
		out.Image = overlay.Image
	}
	if overlay.MetaData != nil {
		out.MetaData = make(map[string]any, len(overlay.MetaData))
		for k, v := range overlay.MetaData {
			out.MetaData[k] = v
		}
	}
	if overlay.SyncTime != "" {
		out.SyncTime = overlay.SyncTime
	}
	if overlay.Session != "" {
		out.Session = overlay.Session
	}
	if overlay.Context != "" {
		out.Context = overlay.Context
	}
	if overlay.Scope != "" {
		out.Scope = overlay.Scope
	}
	return out
}

// NewRecord builds the record to create for an entry that matched nothing.
// Scope defaults to DefaultScope and both audit fields are the actor.
func NewRecord(e Entry, actor string) Record {
	r := Record{
		TenantID:       e.TenantID,
		UserID:         e.UserID,
		AttendanceDate: e.AttendanceDate,
		Attendance:     e.Attendance,
		Remark:         e.Remark,
		Image:          e.Image,
		SyncTime:       e.SyncTime,
		Session:        e.Session,
		Context:        e.Context,
		ContextID:      e.ContextID,
		Scope:          e.Scope,
		CreatedBy:      actor,
		UpdatedBy:      actor,
	}
	if r.Scope == "" {
		r.Scope = DefaultScope
	}
	if e.Latitude != nil {
		v := *e.Latitude
		r.Latitude = &v
	}
	if e.Longitude != nil {
		v := *e.Longitude
		r.Longitude = &v
	}
	if e.MetaData != nil {
		r.MetaData = make(map[string]any, len(e.MetaData))
		for k, v := range e.MetaData {
			r.MetaData[k] = v
		}
	}
	return r
}

// Package radar tracks the user's own aircraft and nearby AI traffic over
// a Simulator Link session, turning periodic telemetry samples into
// add/update/remove notifications.
package radar

import "skybridge/pkg/simlink"

// Identity is the resolved {airline, flight number, model, title} tuple for
// an aircraft, reduced to the callsign and model a consumer actually needs.
type Identity struct {
	Callsign string
	Model    string
}

// Track is one accepted telemetry sample.
type Track struct {
	Longitude         float64
	Latitude          float64
	HeadingTrue       float64
	HeadingGyro       float64
	AltitudeIndicated float64
	AltitudeTrue      float64
	AltitudeAGL       float64
	IAS               float64
	GroundSpeed       float64
	VerticalSpeed     float64
}

// inLoadingLimbo is the debounce predicate every tracker applies to a raw
// sample before accepting it: near (0,0) and low altitude is the signature
// of a sim object that hasn't finished initializing yet.
func inLoadingLimbo(t Track) bool {
	return abs(t.Longitude) < 1 && abs(t.Latitude) < 1 && t.AltitudeIndicated < 1000
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// identVars is the ordered schema of the "ident" DataModel: who is this
// object. identityFromRow below (and the tests' identRow helper) must stay
// in lockstep with this order.
var identVars = []simlink.VarSpec{
	{Name: "ATC AIRLINE", Kind: simlink.VarString64},
	{Name: "ATC FLIGHT NUMBER", Kind: simlink.VarString8},
	{Name: "ATC MODEL", Kind: simlink.VarString32},
	{Name: "TITLE", Kind: simlink.VarString128},
	{Name: "IS USER SIM", Kind: simlink.VarInt64},
}

// trackVars is the ordered schema of the "radar_info"/tracking DataModel.
var trackVars = []simlink.VarSpec{
	{Name: "PLANE LONGITUDE", Units: "degrees", Kind: simlink.VarFloat64},
	{Name: "PLANE LATITUDE", Units: "degrees", Kind: simlink.VarFloat64},
	{Name: "PLANE HEADING DEGREES TRUE", Units: "degrees", Kind: simlink.VarFloat64},
	{Name: "PLANE HEADING DEGREES GYRO", Units: "degrees", Kind: simlink.VarFloat64},
	{Name: "INDICATED ALTITUDE", Units: "feet", Kind: simlink.VarFloat64},
	{Name: "PLANE ALTITUDE", Units: "feet", Kind: simlink.VarFloat64},
	{Name: "PLANE ALT ABOVE GROUND", Units: "feet", Kind: simlink.VarFloat64},
	{Name: "AIRSPEED INDICATED", Units: "knots", Kind: simlink.VarFloat64},
	{Name: "GROUND VELOCITY", Units: "knots", Kind: simlink.VarFloat64},
	{Name: "VERTICAL SPEED", Units: "feet per minute", Kind: simlink.VarFloat64},
}

func identityFromRow(row []any) (identity Identity, isUserSim bool) {
	airline, _ := row[0].(string)
	flightNumber, _ := row[1].(string)
	model, _ := row[2].(string)
	title, _ := row[3].(string)
	userFlag, _ := row[4].(int64)

	callsign := airline + flightNumber
	if callsign == "" {
		callsign = title
	}
	return Identity{Callsign: callsign, Model: model}, userFlag != 0
}

func trackFromRow(row []any) Track {
	f := func(i int) float64 {
		v, _ := row[i].(float64)
		return v
	}
	return Track{
		Longitude:         f(0),
		Latitude:          f(1),
		HeadingTrue:       f(2),
		HeadingGyro:       f(3),
		AltitudeIndicated: f(4),
		AltitudeTrue:      f(5),
		AltitudeAGL:       f(6),
		IAS:               f(7),
		GroundSpeed:       f(8),
		VerticalSpeed:     f(9),
	}
}

// Requester is the narrow slice of simlink.Link that the tracker and the
// radar need: register models, request/cancel telemetry subscriptions.
// Depending on an interface here rather than *simlink.Link keeps both
// trackers testable without a real transport.
type Requester interface {
	RegisterDataModel(vars []simlink.VarSpec) (simlink.ModelId, bool)
	RequestDataOnSimObject(objectID uint32, model simlink.ModelId, period simlink.Period, cb func(row []any)) (simlink.RequestId, error)
	RequestDataOnSimObjectType(objType simlink.ObjectType, model simlink.ModelId, radiusM float64, cb func(objectID uint32, row []any)) (simlink.RequestId, error)
	CancelDataOnSimObject(id simlink.RequestId) error
}

// UserSink is the capability Radar uses to hand an aircraft over to the
// User Aircraft Tracker once identification reveals is_user_sim. Radar
// holds this interface but never owns the tracker behind it.
type UserSink interface {
	Set(objectID uint32)
}

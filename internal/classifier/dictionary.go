package classifier

import (
	"strings"

	"github.com/nerrad567/ovms-bridge/internal/entity"
	"github.com/nerrad567/ovms-bridge/internal/parser"
)

// MetricDef describes a known OVMS metric. Scalar definitions are numeric
// unless Text is set or the family is a timestamp.
type MetricDef struct {
	Path        string        // Canonical dotted path (e.g. "v.b.soc")
	Name        string        // Display name
	Unit        string        // Canonical unit
	Family      parser.Family // Unit family for parser dispatch
	DeviceClass string        // Device class hint for hosts
	Icon        string        // Icon hint for hosts
	Category    string        // Category override; empty means derive from path
	Type        entity.Type   // Zero value means scalar
	Inverted    bool          // Wire "1" means false
	Text        bool          // Free-text scalar
}

// Units used by the dictionary.
const (
	unitPercent = "%"
	unitVolt    = "V"
	unitAmp     = "A"
	unitKW      = "kW"
	unitKWh     = "kWh"
	unitCelsius = "°C"
	unitKm      = "km"
	unitKmh     = "km/h"
	unitKPa     = "kPa"
	unitDBm     = "dBm"
	unitMeter   = "m"
	unitDegree  = "°"
	unitSecond  = "s"
	unitMinute  = "min"
	unitRPM     = "rpm"
	unitWhKm    = "Wh/km"
)

// Metrics is the static dictionary of known OVMS metrics.
var Metrics = []MetricDef{
	// ── Battery ──────────────────────────────────────────────
	{Path: "v.b.soc", Name: "Battery State of Charge", Unit: unitPercent, DeviceClass: "battery", Icon: "mdi:battery"},
	{Path: "v.b.soh", Name: "Battery State of Health", Unit: unitPercent, Icon: "mdi:battery-heart-variant"},
	{Path: "v.b.cac", Name: "Battery Capacity", Unit: "Ah", Icon: "mdi:battery-high"},
	{Path: "v.b.voltage", Name: "Battery Voltage", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:flash"},
	{Path: "v.b.current", Name: "Battery Current", Unit: unitAmp, DeviceClass: "current", Icon: "mdi:current-dc"},
	{Path: "v.b.power", Name: "Battery Power", Unit: unitKW, DeviceClass: "power", Icon: "mdi:flash"},
	{Path: "v.b.temp", Name: "Battery Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Path: "v.b.range.est", Name: "Estimated Range", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:map-marker-distance"},
	{Path: "v.b.range.ideal", Name: "Ideal Range", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:map-marker-distance"},
	{Path: "v.b.range.full", Name: "Full Range", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:map-marker-distance"},
	{Path: "v.b.consumption", Name: "Battery Consumption", Unit: unitWhKm, Icon: "mdi:gauge"},
	{Path: "v.b.energy.used", Name: "Energy Used", Unit: unitKWh, DeviceClass: "energy", Icon: "mdi:battery-minus"},
	{Path: "v.b.energy.recd", Name: "Energy Recovered", Unit: unitKWh, DeviceClass: "energy", Icon: "mdi:battery-plus"},
	{Path: "v.b.energy.used.total", Name: "Energy Used Total", Unit: unitKWh, DeviceClass: "energy", Icon: "mdi:battery-minus"},
	{Path: "v.b.energy.recd.total", Name: "Energy Recovered Total", Unit: unitKWh, DeviceClass: "energy", Icon: "mdi:battery-plus"},
	{Path: "v.b.12v.voltage", Name: "12V Battery Voltage", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:car-battery"},
	{Path: "v.b.12v.current", Name: "12V Battery Current", Unit: unitAmp, DeviceClass: "current", Icon: "mdi:car-battery"},
	{Path: "v.b.12v.voltage.ref", Name: "12V Reference Voltage", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:car-battery"},
	{Path: "v.b.p.voltage.min", Name: "Cell Voltage Min", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:flash"},
	{Path: "v.b.p.voltage.max", Name: "Cell Voltage Max", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:flash"},
	{Path: "v.b.p.voltage.avg", Name: "Cell Voltage Average", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:flash"},
	{Path: "v.b.p.temp.min", Name: "Cell Temperature Min", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Path: "v.b.p.temp.max", Name: "Cell Temperature Max", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Path: "v.b.p.temp.avg", Name: "Cell Temperature Average", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Path: "v.b.c.voltage", Name: "Cell Voltages", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:flash"},
	{Path: "v.b.c.temp", Name: "Cell Temperatures", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},

	// ── Charging ─────────────────────────────────────────────
	{Path: "v.c.charging", Name: "Charging", DeviceClass: "battery_charging", Icon: "mdi:battery-charging", Type: entity.TypeBoolean},
	{Path: "v.c.inprogress", Name: "Charge In Progress", DeviceClass: "battery_charging", Icon: "mdi:battery-charging", Type: entity.TypeBoolean},
	{Path: "v.c.state", Name: "Charge State", Icon: "mdi:ev-station", Text: true},
	{Path: "v.c.substate", Name: "Charge Substate", Icon: "mdi:ev-station", Text: true},
	{Path: "v.c.mode", Name: "Charge Mode", Icon: "mdi:ev-station", Text: true},
	{Path: "v.c.type", Name: "Charge Connector Type", Icon: "mdi:ev-plug-type2", Text: true},
	{Path: "v.c.pilot", Name: "Charge Pilot", DeviceClass: "plug", Icon: "mdi:ev-plug-type2", Type: entity.TypeBoolean},
	{Path: "v.c.voltage", Name: "Charge Voltage", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:flash"},
	{Path: "v.c.current", Name: "Charge Current", Unit: unitAmp, DeviceClass: "current", Icon: "mdi:current-ac"},
	{Path: "v.c.climit", Name: "Charge Current Limit", Unit: unitAmp, DeviceClass: "current", Icon: "mdi:current-ac"},
	{Path: "v.c.power", Name: "Charge Power", Unit: unitKW, DeviceClass: "power", Icon: "mdi:flash"},
	{Path: "v.c.kwh", Name: "Charge Energy", Unit: unitKWh, DeviceClass: "energy", Icon: "mdi:battery-charging"},
	{Path: "v.c.efficiency", Name: "Charge Efficiency", Unit: unitPercent, Icon: "mdi:percent"},
	{Path: "v.c.temp", Name: "Charger Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Path: "v.c.time", Name: "Charge Time", Unit: unitSecond, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer"},
	{Path: "v.c.duration.full", Name: "Time to Full", Unit: unitMinute, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer-sand"},
	{Path: "v.c.duration.soc", Name: "Time to SoC Limit", Unit: unitMinute, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer-sand"},
	{Path: "v.c.duration.range", Name: "Time to Range Limit", Unit: unitMinute, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer-sand"},
	{Path: "v.c.limit.soc", Name: "Charge SoC Limit", Unit: unitPercent, Icon: "mdi:battery-lock"},
	{Path: "v.c.limit.range", Name: "Charge Range Limit", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:map-marker-distance"},
	{Path: "v.c.timermode", Name: "Charge Timer", Icon: "mdi:timer-outline", Type: entity.TypeBoolean},
	{Path: "v.c.timerstart", Name: "Charge Timer Start", Icon: "mdi:clock-start", Text: true},
	{Path: "v.c.12v.current", Name: "DC-DC Converter Current", Unit: unitAmp, DeviceClass: "current", Icon: "mdi:current-ac", Category: CategoryPower},
	{Path: "v.c.12v.power", Name: "DC-DC Converter Power", Unit: unitKW, DeviceClass: "power", Icon: "mdi:flash", Category: CategoryPower},
	{Path: "v.c.12v.temp", Name: "DC-DC Converter Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer", Category: CategoryPower},
	{Path: "v.c.12v.voltage", Name: "DC-DC Converter Voltage", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:flash", Category: CategoryPower},

	// ── Doors ────────────────────────────────────────────────
	{Path: "v.d.fl", Name: "Front Left Door", DeviceClass: "door", Icon: "mdi:car-door", Type: entity.TypeBoolean},
	{Path: "v.d.fr", Name: "Front Right Door", DeviceClass: "door", Icon: "mdi:car-door", Type: entity.TypeBoolean},
	{Path: "v.d.rl", Name: "Rear Left Door", DeviceClass: "door", Icon: "mdi:car-door", Type: entity.TypeBoolean},
	{Path: "v.d.rr", Name: "Rear Right Door", DeviceClass: "door", Icon: "mdi:car-door", Type: entity.TypeBoolean},
	{Path: "v.d.hood", Name: "Hood", DeviceClass: "door", Icon: "mdi:car-lifted-pickup", Type: entity.TypeBoolean},
	{Path: "v.d.trunk", Name: "Trunk", DeviceClass: "door", Icon: "mdi:car-back", Type: entity.TypeBoolean},
	{Path: "v.d.cp", Name: "Charge Port", DeviceClass: "door", Icon: "mdi:ev-plug-type2", Type: entity.TypeBoolean},
	{Path: "v.e.locked", Name: "Vehicle Lock", DeviceClass: "lock", Icon: "mdi:lock", Type: entity.TypeBoolean, Inverted: true, Category: CategoryDoor},

	// ── Climate ──────────────────────────────────────────────
	{Path: "v.e.cabintemp", Name: "Cabin Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Path: "v.e.cabinsetpoint", Name: "Cabin Setpoint", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermostat"},
	{Path: "v.e.cabinfan", Name: "Cabin Fan", Unit: unitPercent, Icon: "mdi:fan"},
	{Path: "v.e.cabinintake", Name: "Cabin Intake", Icon: "mdi:air-filter", Text: true},
	{Path: "v.e.cabinvent", Name: "Cabin Vent", Icon: "mdi:air-filter", Text: true},
	{Path: "v.e.temp", Name: "Ambient Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer", Category: CategoryClimate},
	{Path: "v.e.hvac", Name: "HVAC", DeviceClass: "running", Icon: "mdi:air-conditioner", Type: entity.TypeBoolean, Category: CategoryClimate},
	{Path: "v.e.heating", Name: "Heating", DeviceClass: "heat", Icon: "mdi:radiator", Type: entity.TypeBoolean, Category: CategoryClimate},
	{Path: "v.e.cooling", Name: "Cooling", DeviceClass: "cold", Icon: "mdi:snowflake", Type: entity.TypeBoolean, Category: CategoryClimate},

	// ── Diagnostic ───────────────────────────────────────────
	{Path: "v.e.on", Name: "Vehicle On", DeviceClass: "running", Icon: "mdi:car", Type: entity.TypeBoolean},
	{Path: "v.e.awake", Name: "Vehicle Awake", DeviceClass: "running", Icon: "mdi:sleep-off", Type: entity.TypeBoolean},
	{Path: "v.e.alarm", Name: "Alarm", DeviceClass: "safety", Icon: "mdi:alarm-light", Type: entity.TypeBoolean},
	{Path: "v.e.valet", Name: "Valet Mode", Icon: "mdi:account-tie", Type: entity.TypeBoolean},
	{Path: "v.e.handbrake", Name: "Handbrake", Icon: "mdi:car-brake-parking", Type: entity.TypeBoolean},
	{Path: "v.e.headlights", Name: "Headlights", DeviceClass: "light", Icon: "mdi:car-light-high", Type: entity.TypeBoolean},
	{Path: "v.e.charging12v", Name: "12V Charging", DeviceClass: "battery_charging", Icon: "mdi:car-battery", Type: entity.TypeBoolean},
	{Path: "v.e.aux12v", Name: "12V Auxiliary", DeviceClass: "power", Icon: "mdi:car-battery", Type: entity.TypeBoolean},
	{Path: "v.e.gear", Name: "Gear", Icon: "mdi:car-shift-pattern"},
	{Path: "v.e.drivemode", Name: "Drive Mode", Icon: "mdi:car-cog", Text: true},
	{Path: "v.e.serv.range", Name: "Service Range", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:wrench-clock"},
	{Path: "v.e.serv.time", Name: "Service Time", Family: parser.FamilyTimestamp, DeviceClass: "timestamp", Icon: "mdi:wrench-clock"},
	{Path: "v.e.c.config", Name: "ECU Config Mode", Icon: "mdi:cog", Type: entity.TypeBoolean},
	{Path: "v.e.c.login", Name: "ECU Login", Icon: "mdi:login", Type: entity.TypeBoolean},

	// ── Trip ─────────────────────────────────────────────────
	{Path: "v.e.drivetime", Name: "Drive Time", Unit: unitSecond, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer", Category: CategoryTrip},
	{Path: "v.e.parktime", Name: "Park Time", Unit: unitSecond, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer", Category: CategoryTrip},
	{Path: "v.e.throttle", Name: "Throttle", Unit: unitPercent, Icon: "mdi:speedometer", Category: CategoryTrip},
	{Path: "v.e.footbrake", Name: "Foot Brake", Unit: unitPercent, Icon: "mdi:car-brake-alert", Category: CategoryTrip},
	{Path: "v.p.odometer", Name: "Odometer", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:counter", Category: CategoryTrip},
	{Path: "v.p.trip", Name: "Trip Meter", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:map-marker-path", Category: CategoryTrip},
	{Path: "v.p.speed", Name: "Speed", Unit: unitKmh, DeviceClass: "speed", Icon: "mdi:speedometer", Category: CategoryTrip},
	{Path: "v.p.acceleration", Name: "Acceleration", Unit: "m/s²", Icon: "mdi:speedometer", Category: CategoryTrip},
	{Path: "v.p.valet.distance", Name: "Valet Distance", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:map-marker-distance", Category: CategoryTrip},

	// ── Location ─────────────────────────────────────────────
	{Path: "v.p.latitude", Name: "Latitude", Unit: unitDegree, Icon: "mdi:map-marker", Type: entity.TypePositionalFix},
	{Path: "v.p.longitude", Name: "Longitude", Unit: unitDegree, Icon: "mdi:map-marker", Type: entity.TypePositionalFix},
	{Path: "v.p.altitude", Name: "Altitude", Unit: unitMeter, DeviceClass: "distance", Icon: "mdi:elevation-rise"},
	{Path: "v.p.direction", Name: "Direction", Unit: unitDegree, Icon: "mdi:compass"},
	{Path: "v.p.gpshdop", Name: "GPS HDOP", Icon: "mdi:crosshairs-gps"},
	{Path: "v.p.gpssq", Name: "GPS Signal Quality", Unit: unitPercent, Icon: "mdi:signal"},
	{Path: "v.p.gpslock", Name: "GPS Lock", DeviceClass: "connectivity", Icon: "mdi:crosshairs-gps", Type: entity.TypeBoolean},
	{Path: "v.p.gpsmode", Name: "GPS Mode", Icon: "mdi:crosshairs-gps", Text: true},
	{Path: "v.p.gpsspeed", Name: "GPS Speed", Unit: unitKmh, DeviceClass: "speed", Icon: "mdi:speedometer"},
	{Path: "v.p.gpstime", Name: "GPS Time", Family: parser.FamilyTimestamp, DeviceClass: "timestamp", Icon: "mdi:clock"},
	{Path: "v.p.satcount", Name: "GPS Satellites", Icon: "mdi:satellite-variant"},
	{Path: "v.p.location", Name: "Location Name", Icon: "mdi:map-marker", Text: true},
	{Path: "v.p.valet.latitude", Name: "Valet Mode Last Latitude", Unit: unitDegree, Icon: "mdi:map-marker"},
	{Path: "v.p.valet.longitude", Name: "Valet Mode Last Longitude", Unit: unitDegree, Icon: "mdi:map-marker"},

	// ── Power ────────────────────────────────────────────────
	{Path: "v.g.generating", Name: "Generating", DeviceClass: "power", Icon: "mdi:flash", Type: entity.TypeBoolean},
	{Path: "v.g.power", Name: "Generator Power", Unit: unitKW, DeviceClass: "power", Icon: "mdi:flash"},
	{Path: "v.g.current", Name: "Generator Current", Unit: unitAmp, DeviceClass: "current", Icon: "mdi:current-ac"},
	{Path: "v.g.voltage", Name: "Generator Voltage", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:flash"},
	{Path: "v.g.kwh", Name: "Generator Energy", Unit: unitKWh, DeviceClass: "energy", Icon: "mdi:flash"},
	{Path: "v.g.mode", Name: "Generator Mode", Icon: "mdi:flash", Text: true},
	{Path: "v.g.state", Name: "Generator State", Icon: "mdi:flash", Text: true},
	{Path: "v.g.time", Name: "Generator Time", Unit: unitSecond, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer"},

	// ── Motor ────────────────────────────────────────────────
	{Path: "v.m.rpm", Name: "Motor RPM", Unit: unitRPM, Icon: "mdi:engine"},
	{Path: "v.m.temp", Name: "Motor Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Path: "v.i.temp", Name: "Inverter Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Path: "v.i.power", Name: "Inverter Power", Unit: unitKW, DeviceClass: "power", Icon: "mdi:flash"},
	{Path: "v.i.efficiency", Name: "Inverter Efficiency", Unit: unitPercent, Icon: "mdi:percent"},

	// ── Tyres ────────────────────────────────────────────────
	{Path: "v.t.pressure", Name: "Tyre Pressure", Unit: unitKPa, Family: parser.FamilyPressure, DeviceClass: "pressure", Icon: "mdi:car-tire-alert"},
	{Path: "v.t.temp", Name: "Tyre Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Path: "v.t.health", Name: "Tyre Health", Unit: unitPercent, Icon: "mdi:car-tire-alert"},
	{Path: "v.t.diff", Name: "Tyre Pressure Difference", Unit: unitKPa, Family: parser.FamilyPressure, DeviceClass: "pressure", Icon: "mdi:car-tire-alert"},
	{Path: "v.t.alert", Name: "Tyre Alert", DeviceClass: "problem", Icon: "mdi:car-tire-alert", Type: entity.TypeBoolean},

	// ── Device / network / system ────────────────────────────
	{Path: "v.type", Name: "Vehicle Type", Icon: "mdi:car-info", Text: true, Category: CategoryDevice},
	{Path: "v.vin", Name: "VIN", Icon: "mdi:card-account-details", Text: true, Category: CategoryDevice},
	{Path: "m.net.type", Name: "Network Type", Icon: "mdi:network", Text: true},
	{Path: "m.net.sq", Name: "Network Signal Quality", Unit: unitDBm, DeviceClass: "signal_strength", Icon: "mdi:signal"},
	{Path: "m.net.provider", Name: "Network Provider", Icon: "mdi:sim", Text: true},
	{Path: "m.net.mdm.sq", Name: "Modem Signal Quality", Unit: unitDBm, DeviceClass: "signal_strength", Icon: "mdi:signal"},
	{Path: "m.net.mdm.network", Name: "Modem Network", Icon: "mdi:sim", Text: true},
	{Path: "m.net.mdm.iccid", Name: "SIM ICCID", Icon: "mdi:sim", Text: true},
	{Path: "m.net.mdm.model", Name: "Modem Model", Icon: "mdi:router-wireless", Text: true},
	{Path: "m.net.wifi.network", Name: "WiFi Network", Icon: "mdi:wifi", Text: true},
	{Path: "m.net.wifi.sq", Name: "WiFi Signal Quality", Unit: unitDBm, DeviceClass: "signal_strength", Icon: "mdi:wifi"},
	{Path: "m.version", Name: "Firmware Version", Icon: "mdi:package-up", Text: true},
	{Path: "m.hardware", Name: "Hardware", Icon: "mdi:chip", Text: true},
	{Path: "m.serial", Name: "Module Serial", Icon: "mdi:identifier", Text: true},
	{Path: "m.freeram", Name: "Free RAM", Unit: "B", DeviceClass: "data_size", Icon: "mdi:memory"},
	{Path: "m.tasks", Name: "Tasks", Icon: "mdi:format-list-numbered"},
	{Path: "m.monotonic", Name: "Uptime", Unit: unitSecond, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer-outline"},
	{Path: "m.time.utc", Name: "Module Time", Family: parser.FamilyTimestamp, DeviceClass: "timestamp", Icon: "mdi:clock"},
	{Path: "s.v2.connected", Name: "Server V2 Connected", DeviceClass: "connectivity", Icon: "mdi:server-network", Type: entity.TypeBoolean},
	{Path: "s.v2.peers", Name: "Server V2 Peers", Icon: "mdi:account-multiple"},
	{Path: "s.v3.connected", Name: "Server V3 Connected", DeviceClass: "connectivity", Icon: "mdi:server-network", Type: entity.TypeBoolean},
	{Path: "s.v3.peers", Name: "Server V3 Peers", Icon: "mdi:account-multiple"},

	// ── Vendor specific ──────────────────────────────────────
	{Path: "xmg.b.capacity", Name: "Battery Capacity", Unit: unitKWh, DeviceClass: "energy", Icon: "mdi:battery-high", Category: CategoryBattery},
	{Path: "xmg.v.soc.raw", Name: "Raw State of Charge", Unit: unitPercent, DeviceClass: "battery", Icon: "mdi:battery", Category: CategoryBattery},
	{Path: "xmg.v.bat.coolant.temp", Name: "Battery Coolant Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:coolant-temperature", Category: CategoryBattery},
	{Path: "xmg.v.m.torque", Name: "Motor Torque", Unit: "Nm", Icon: "mdi:engine", Category: CategoryMotor},
	{Path: "xmg.enable.polling", Name: "Polling", Icon: "mdi:sync", Type: entity.TypeActuator, Category: CategorySystem},
	{Path: "xnl.bms.balancing", Name: "Cell Balancing", Icon: "mdi:scale-balance", Type: entity.TypeBoolean, Category: CategoryBattery},
	{Path: "xnl.bms.temp.int", Name: "BMS Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer", Category: CategoryBattery},
	{Path: "xnl.cc.fan.only", Name: "Climate Fan Only", Icon: "mdi:fan", Type: entity.TypeBoolean, Category: CategoryClimate},
}

// VendorPrefixes maps vendor-specific metric namespaces to the vehicle
// model they belong to.
var VendorPrefixes = map[string]string{
	"xvu": "VW e-Up",
	"xmg": "MG ZS EV",
	"xsq": "Smart EQ",
	"xnl": "Nissan Leaf",
	"xrt": "Renault Twizy",
}

var metricIndex map[string]*MetricDef

func init() {
	metricIndex = make(map[string]*MetricDef, len(Metrics))
	for i := range Metrics {
		metricIndex[Metrics[i].Path] = &Metrics[i]
	}
}

// LookupMetric returns the dictionary entry for a dotted path, or nil.
// A vendor-prefixed path with no entry of its own is retried with the vendor
// namespace stripped, then with "v." in its place ("xvu.b.soc" tries
// "b.soc" and "v.b.soc").
func LookupMetric(path string) *MetricDef {
	path = strings.ToLower(path)
	if def, ok := metricIndex[path]; ok {
		return def
	}
	vendor, rest, ok := strings.Cut(path, ".")
	if !ok {
		return nil
	}
	if _, known := VendorPrefixes[vendor]; !known {
		return nil
	}
	if def, ok := metricIndex[rest]; ok {
		return def
	}
	if def, ok := metricIndex["v."+rest]; ok {
		return def
	}
	return nil
}

// VendorOf returns the vehicle model for a vendor-prefixed path, or "".
func VendorOf(path string) string {
	vendor, _, _ := strings.Cut(strings.ToLower(path), ".")
	return VendorPrefixes[vendor]
}

// numeric reports whether the definition requires numeric state.
func (d *MetricDef) numeric() bool {
	typ := d.Type
	if typ == "" {
		typ = entity.TypeScalar
	}
	switch typ {
	case entity.TypePositionalFix:
		return true
	case entity.TypeScalar:
		return !d.Text && d.Family != parser.FamilyTimestamp
	default:
		return false
	}
}

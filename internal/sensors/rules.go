package sensors

// evaluate runs every rule applicable to the sensor's type against the
// reading and returns one trigger per satisfied rule. Multiple triggers
// from a single reading are legal and expected. Caller holds the
// registry lock.
func (r *Registry) evaluate(s *Sensor, rd Reading) []Trigger {
	var names []string

	switch s.Type {
	case TypeCamera:
		names = r.evaluateCamera(rd)
	case TypeDrone:
		names = r.evaluateDrone(s, rd)
	case TypeGPSTracker:
		names = r.evaluateGPS(s, rd)
	case TypeMotionSensor:
		names = evaluateMotionSensor(rd)
	case TypeEnvironmental:
		names = evaluateEnvironmental(s, rd)
	case TypeAccessControl:
		names = evaluateAccessControl(rd)
	case TypeRadio:
		names = evaluateRadio(rd)
	}

	triggers := make([]Trigger, 0, len(names))
	for _, name := range names {
		triggers = append(triggers, Trigger{
			Name:       name,
			SensorID:   s.ID,
			SensorName: s.Name,
			SensorType: s.Type,
			Zone:       s.Zone,
			Reading:    rd,
			Timestamp:  rd.Timestamp,
		})
	}
	return triggers
}

func (r *Registry) evaluateCamera(rd Reading) []string {
	var names []string
	if rd.Motion {
		names = append(names, TriggerMotionDetected)
	}
	if hasDetectionClass(rd.Detections, "person") {
		names = append(names, TriggerPersonDetected)
	}
	if hasDetectionClass(rd.Detections, "vehicle") {
		names = append(names, TriggerVehicleDetected)
	}
	for _, d := range rd.Detections {
		if d.Class == "face" && d.ID != "" && r.onWatchlist(WatchlistFace, d.ID) {
			names = append(names, TriggerFaceMatch)
			break
		}
	}
	return names
}

func (r *Registry) evaluateDrone(s *Sensor, rd Reading) []string {
	var names []string
	threshold := s.Config.BatteryLow
	if threshold == 0 {
		threshold = defaultDroneBatteryLow
	}
	if rd.Battery != nil && *rd.Battery < threshold {
		names = append(names, TriggerLowBattery)
	}
	if r.positionBreaches(s, rd) {
		names = append(names, TriggerGeofenceBreach)
	}
	return names
}

func (r *Registry) evaluateGPS(s *Sensor, rd Reading) []string {
	var names []string
	battery := s.Config.BatteryLow
	if battery == 0 {
		battery = defaultGPSBatteryLow
	}
	if rd.Battery != nil && *rd.Battery < battery {
		names = append(names, TriggerBatteryLow)
	}
	limit := s.Config.SpeedLimit
	if limit == 0 {
		limit = defaultSpeedLimit
	}
	if rd.Speed != nil && *rd.Speed > limit {
		names = append(names, TriggerSpeedAlert)
	}
	if rd.SOS {
		names = append(names, TriggerSOSActivated)
	}
	if r.positionBreaches(s, rd) {
		names = append(names, TriggerGeofenceBreach)
	}
	return names
}

func evaluateMotionSensor(rd Reading) []string {
	var names []string
	if rd.Triggered {
		names = append(names, TriggerMotionDetected)
	}
	if rd.Tamper {
		names = append(names, TriggerTamperAlert)
	}
	return names
}

func evaluateEnvironmental(s *Sensor, rd Reading) []string {
	var names []string
	smoke := s.Config.SmokeThreshold
	if smoke == 0 {
		smoke = defaultSmokeThreshold
	}
	if rd.Smoke != nil && *rd.Smoke > smoke {
		names = append(names, TriggerSmokeDetected)
	}
	gas := s.Config.GasThreshold
	if gas == 0 {
		gas = defaultGasThreshold
	}
	if rd.Gas != nil && *rd.Gas > gas {
		names = append(names, TriggerGasLeak)
	}
	if rd.Temperature != nil {
		low, high := defaultTempMin, defaultTempMax
		if s.Config.TempMin != nil {
			low = *s.Config.TempMin
		}
		if s.Config.TempMax != nil {
			high = *s.Config.TempMax
		}
		if *rd.Temperature < low || *rd.Temperature > high {
			names = append(names, TriggerTemperatureAlert)
		}
	}
	return names
}

func evaluateAccessControl(rd Reading) []string {
	var names []string
	if rd.Granted != nil && !*rd.Granted {
		names = append(names, TriggerAccessDenied)
	}
	if rd.EventType == "forced" {
		names = append(names, TriggerForcedEntry)
	}
	return names
}

func evaluateRadio(rd Reading) []string {
	var names []string
	if rd.UnknownSource {
		names = append(names, TriggerUnknownFrequency)
	}
	if rd.Jamming {
		names = append(names, TriggerJammingDetected)
	}
	return names
}

// positionBreaches consults the geofence referenced by the sensor config.
// A missing or unregistered fence yields no breach: the rule fails open.
func (r *Registry) positionBreaches(s *Sensor, rd Reading) bool {
	if rd.Position == nil || s.Config.GeofenceID == "" {
		return false
	}
	fence, ok := r.fences[s.Config.GeofenceID]
	if !ok {
		return false
	}
	return fence.Breach(*rd.Position)
}

func hasDetectionClass(ds []Detection, class string) bool {
	for _, d := range ds {
		if d.Class == class {
			return true
		}
	}
	return false
}

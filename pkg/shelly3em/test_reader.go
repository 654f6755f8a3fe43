package shelly3em

import "time"

func CreateTestSourceMeterReader() (SourceMeterReader, error) {
	return &TestSourceMeterReader{NetPower: -1500}, nil
}

// TestSourceMeterReader serves canned readings. Fields may be changed
// between calls to steer a test.
type TestSourceMeterReader struct {
	NetPower  float32
	OpenErr   error
	ReadErr   error
	OpenCalls int
	ReadCalls int
}

func (reader *TestSourceMeterReader) Open() error {
	reader.OpenCalls++
	return reader.OpenErr
}

func (reader *TestSourceMeterReader) Close() error {
	return nil
}

func (reader *TestSourceMeterReader) GetNetPowerWatt() (float32, error) {
	if reader.ReadErr != nil {
		return 0, reader.ReadErr
	}
	return reader.NetPower, nil
}

func (reader *TestSourceMeterReader) GetReading() (*GridReading, error) {
	reader.ReadCalls++
	if reader.ReadErr != nil {
		return nil, reader.ReadErr
	}
	perPhase := reader.NetPower / 3
	r := &GridReading{
		NetPowerWatt:          reader.NetPower,
		NetCurrentAmp:         reader.NetPower / 230,
		ApparentVA:            reader.NetPower,
		FrequencyHz:           50,
		TotalEnergyImportedWh: 550220,
		TotalEnergyExportedWh: 2770340,
		CapturedAt:            time.Now(),
	}
	for i := range r.Phases {
		r.Phases[i] = PhaseReading{
			VoltageVolt: 230.1,
			CurrentAmp:  perPhase / 230,
			PowerWatt:   perPhase,
			ApparentVA:  perPhase,
			PowerFactor: 1,
		}
	}
	return r, nil
}

package detect

// Scene classification layer values.
const (
	SCLNoData             = 0
	SCLSaturatedDefective = 1
	SCLDarkArea           = 2
	SCLCloudShadows       = 3
	SCLVegetation         = 4
	SCLBareSoil           = 5
	SCLWater              = 6
	SCLCloudLow           = 7
	SCLCloudMedium        = 8
	SCLCloudHigh          = 9
	SCLCirrus             = 10
	SCLSnowIce            = 11
)

type SCLSet uint16

func SCLMask(values ...int) SCLSet {
	var s SCLSet
	for _, v := range values {
		s |= 1 << uint(v)
	}
	return s
}

func (s SCLSet) Has(v float32) bool {
	if v < 0 || v > SCLSnowIce {
		return false
	}
	return s&(1<<uint(v)) != 0
}

var (
	sclInvalid = SCLMask(SCLNoData, SCLSaturatedDefective)
	sclShadow  = SCLMask(SCLCloudShadows, SCLDarkArea)
)

func sclClouds(includeLow bool) SCLSet {
	if includeLow {
		return SCLMask(SCLCloudLow, SCLCloudMedium, SCLCloudHigh)
	}
	return SCLMask(SCLCloudMedium, SCLCloudHigh)
}

package constants

const StandardGravity float64 = 9.80665 // [m s^-2]
const WaterDensity float64 = 1000.      // [kg m^-3]
const WaterViscosity float64 = 8.9e-4   // [Pa s]
const Quantile95 = 1.96

// numerical tolerances, in mesh length units
const IntersectionEpsilon float64 = 1e-8
const TieTolerance float64 = 1e-12
const ReboundOffset float64 = 1e-6
const MaxBouncesPerStep = 10

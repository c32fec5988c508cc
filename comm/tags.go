package comm

// Tag pools. Each logical channel owns a disjoint block of the tag space so
// that a halo exchange and a particle redistribution can be in flight at the
// same time without cross talk.
const (
	ParticleSpatialLayoutTag = 10000
	ParticleLayoutCycle      = 20

	// Halo exchanges add face*HaloCycle to the drawn tag, the block is
	// HaloCycle*2*MaxDim wide.
	HaloFaceTag = 20000
	HaloCycle   = 100

	FFTReshapeTag = 30000
	FFTCycle      = 50
)

// MaxDim is the highest spatial dimension supported by the layouts.
const MaxDim = 3

// Buffer ids for Communicator.Buffer. Per peer buffers add the peer index.
const (
	ParticleSendBuffer = 1000000
	ParticleRecvBuffer = 2000000
	HaloSendBuffer     = 3000000
	HaloRecvBuffer     = 4000000
	FFTSendBuffer      = 5000000
	FFTRecvBuffer      = 6000000
)

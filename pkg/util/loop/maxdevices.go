package loop

// DefaultMaxLoopDevices is the number of /dev/loopXX nodes AttachFromPath
// will probe through before giving up.
const DefaultMaxLoopDevices = 256

package version

import (
	"github.com/Redeven/Streambot/cache"
	"github.com/sirupsen/logrus"
)

// Version related vars
// Set by compiler
var (
	// BOT_VERSION example: 0.5.2-4-g205bbb8
	BOT_VERSION string = "DEV_SNAPSHOT"

	// BUILD_TIME example: Fri Jan  6 00:45:46 CET 2017
	BUILD_TIME string = "UNSET"

	// BUILD_USER example: redeven
	BUILD_USER string = "UNSET"
)

// DumpInfo dumps all above vars
func DumpInfo() {
	cache.GetLogger().WithField("module", "version").WithFields(logrus.Fields{
		"version":    BOT_VERSION,
		"build_time": BUILD_TIME,
		"build_user": BUILD_USER,
	}).Info("build info")
}

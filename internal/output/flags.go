package output

import "flag"

type DataItem struct {
	saveFlag   *bool
	fileSuffix string
}

// DataFlags selects the artifacts of a run. Every artifact has its own
// switch; -all turns them all on.
type DataFlags struct {
	all        *bool
	compress   *bool
	snapshots  DataItem
	tracks     DataItem
	collisions DataItem
	wear       DataItem
	outputPath string
}

func NewDataFlags(fs *flag.FlagSet) DataFlags {
	return DataFlags{
		all:      fs.Bool("all", false, "save every available artifact"),
		compress: fs.Bool("zst", false, "compress step snapshots with zstd"),
		snapshots: DataItem{
			saveFlag:   fs.Bool("snap", false, "save particle snapshots every SaveEvery steps"),
			fileSuffix: "snapshots",
		},
		tracks: DataItem{
			saveFlag:   fs.Bool("tracks", false, "save particle trajectories"),
			fileSuffix: "tracks",
		},
		collisions: DataItem{
			saveFlag:   fs.Bool("coll", true, "save the collision log"),
			fileSuffix: "collisions",
		},
		wear: DataItem{
			saveFlag:   fs.Bool("wear", true, "save wear per boundary surface"),
			fileSuffix: "wear",
		},
	}
}

func (df DataFlags) save(item DataItem) bool {
	return (item.saveFlag != nil && *item.saveFlag) || (df.all != nil && *df.all)
}

func (df DataFlags) compressed() bool { return df.compress != nil && *df.compress }

func (df DataFlags) Snapshots() bool { return df.save(df.snapshots) }

func (df DataFlags) Tracks() bool { return df.save(df.tracks) }

func (df *DataFlags) SetOutputPath(path string) {
	df.outputPath = path
}

func (df *DataFlags) GetOutputPath() string {
	return df.outputPath
}

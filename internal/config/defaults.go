package config

const (
	defaultConfigPath         = "~/.config/npprobes/config.toml"
	defaultSessionRoot        = "/allen/programs/mindscope/workgroups/np-exp"
	defaultDatajointRoot      = "/allen/programs/mindscope/workgroups/dynamicrouting/datajoint/inbox/ks_paramset_idx_1"
	defaultTissuecyteRoot     = "/allen/programs/mindscope/workgroups/np-behavior/tissuecyte"
	defaultAnnotationVolume   = "/allen/programs/mindscope/workgroups/np-behavior/tissuecyte/field_reference/ccf_ano.mhd"
	defaultOutputSubdir       = "SDK_outputs"
	defaultLogDir             = "~/.local/share/npprobes/logs"
	defaultRegistryPath       = "/allen/programs/mindscope/workgroups/dynamicrouting/dynamic_routing_unique_ids.json"
	defaultRegistrySQLitePath = "~/.local/share/npprobes/registry.db"
	defaultLockTimeout        = 30
	defaultAlignTimeout       = 3600
	defaultPackagingTimeout   = 3600
	defaultAPSamplingRate     = 30000.0
	defaultLFPSamplingRate    = 2500.0
	defaultSubsamplingFactor  = 2
	defaultSurfaceChannel     = 384.0
	defaultReferenceChannel   = 191
	defaultDescription        = "Data and metadata for a Neuropixels ecephys session"
	defaultContainerName      = "{session}.probes.sqlite"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultS3Region           = "us-west-2"
)

// Registry modes.
const (
	RegistryFile     = "file"
	RegistrySQLite   = "sqlite"
	RegistryPostgres = "postgres"
	RegistryRandom   = "random"
)

// Publish drivers.
const (
	PublishNone = "none"
	PublishFS   = "fs"
	PublishS3   = "s3"
)

func defaultAlignCommand() []string {
	return []string{"python", "-m", "allensdk.brain_observatory.ecephys.align_timestamps"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SessionRoots:     []string{defaultSessionRoot},
			DatajointRoot:    defaultDatajointRoot,
			TissuecyteRoot:   defaultTissuecyteRoot,
			AnnotationVolume: defaultAnnotationVolume,
			OutputSubdir:     defaultOutputSubdir,
			LogDir:           defaultLogDir,
		},
		Registry: Registry{
			Mode:               RegistryFile,
			Path:               defaultRegistryPath,
			SQLitePath:         defaultRegistrySQLitePath,
			LockTimeoutSeconds: defaultLockTimeout,
		},
		Alignment: Alignment{
			Command:         defaultAlignCommand(),
			TimeoutSeconds:  defaultAlignTimeout,
			APSamplingRate:  defaultAPSamplingRate,
			LFPSamplingRate: defaultLFPSamplingRate,
		},
		LFP: LFP{
			TemporalSubsamplingFactor: defaultSubsamplingFactor,
			SurfaceChannel:            defaultSurfaceChannel,
			ReferenceChannels:         []int{defaultReferenceChannel},
		},
		Packaging: Packaging{
			Description:    defaultDescription,
			ContainerName:  defaultContainerName,
			TimeoutSeconds: defaultPackagingTimeout,
			IncludeLFP:     true,
			IncludeCSD:     true,
		},
		Publish: Publish{
			Driver: PublishNone,
			Region: defaultS3Region,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

type AppConfig struct {
	Server ServerConfig
	Engine EngineConfig
	Bot    BotConfig
	Log    LogConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	engineCfg, err := LoadEngine()
	if err != nil {
		return AppConfig{}, err
	}
	botCfg, err := LoadBot()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server: serverCfg,
		Engine: engineCfg,
		Bot:    botCfg,
		Log:    logCfg,
	}, nil
}

// 版权所有 2024 ClipForge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 media 封装 ffmpeg/ffprobe 调用，提供视频探测、音轨提取、字幕渲染
与梗特效处理能力。

# 概述

本包是 ClipForge 的媒体处理层。所有外部进程调用都通过 [Executor]
接口进行，真实实现 shell out 到 ffmpeg，测试用假实现替换；stderr
会折叠进返回错误，便于排查滤镜语法问题。

# 核心类型

  - [Executor]：外部命令执行接口（Execute / ExecuteInDir / LookPath）
  - [Processor]：ffmpeg 封装，Probe / ExtractAudio / BurnCaptions / Version
  - [Effects]：梗特效引擎，按检测时刻顺序应用 zoom / emoji / sound /
    slowmo / text，并提供变速、调色与拼接
  - [AssetLibrary]：emoji 图片与音效素材解析，缺失 emoji 自动生成占位图
  - [Exporter]：成品导出，clipforge_output_<unix>.mp4 命名并防撞

# 字幕

SRT 渲染使用 HH:MM:SS,mmm 时间戳（FormatTimestamp / ParseTimestamp），
烧录在任务工作目录内执行，subtitles 滤镜只引用相对文件名；样式预设
standard / tiktok / youtube / custom 映射为 libass force_style 参数。

# 滤镜构造

ZoomFilter、EmojiOverlayFilter、SoundMixFilter、SlowmoFilter、
TextOverlayFilter、ColorEnhanceFilter、ConcatFilter 均为纯函数，
时间参数四舍五入到毫秒，drawtext 文本做引号与冒号消毒。
*/
package media
